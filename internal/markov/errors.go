package markov

import "errors"

var (
	// ErrEmptyModel is returned when generation is requested before anything
	// has been learned. Callers should skip the reply and try again later.
	ErrEmptyModel = errors.New("markov: model is empty")

	// ErrCorruptState is returned when persisted state cannot be decoded into
	// a valid model.
	ErrCorruptState = errors.New("markov: corrupt persisted state")

	// ErrStoreUnavailable is returned by persistence backends when the
	// underlying storage cannot be reached. The in-memory model stays valid.
	ErrStoreUnavailable = errors.New("markov: store unavailable")

	// ErrOrderMismatch is returned when a context does not hold exactly
	// order tokens.
	ErrOrderMismatch = errors.New("markov: context length does not match chain order")
)
