package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

var _ mautrix.SyncStore = (*SyncStore)(nil)

// StateStore persists small transport values.
type StateStore interface {
	SaveState(ctx context.Context, transport, key, value string) error
	LoadState(ctx context.Context, transport, key string) (string, error)
}

// SyncStore keeps the filter ID and next_batch token in a StateStore so a
// restart resumes from the last sync instead of replaying room history.
type SyncStore struct {
	state StateStore

	// Commit, when set, runs before every next_batch token is saved. Its
	// error is returned instead of saving the token.
	Commit func(ctx context.Context) error
}

// NewSyncStore wraps state.
func NewSyncStore(state StateStore) *SyncStore {
	return &SyncStore{state: state}
}

func (s *SyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.state.SaveState(ctx, transportName, userID.String()+"/filter_id", filterID)
}

func (s *SyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.LoadState(ctx, transportName, userID.String()+"/filter_id")
}

func (s *SyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	if s.Commit != nil {
		if err := s.Commit(ctx); err != nil {
			return fmt.Errorf("commit before next_batch: %w", err)
		}
	}
	return s.state.SaveState(ctx, transportName, userID.String()+"/next_batch", nextBatchToken)
}

func (s *SyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.LoadState(ctx, transportName, userID.String()+"/next_batch")
}
