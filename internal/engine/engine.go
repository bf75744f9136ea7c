// Package engine owns the per-namespace Markov models of a running process
// and their persistence: startup load, learning and generation entry points,
// periodic checkpoints and the final flush on shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/RedCat17/mudrets-bot/internal/markov"
	"github.com/RedCat17/mudrets-bot/internal/model"
	"github.com/RedCat17/mudrets-bot/internal/retry"
	"github.com/RedCat17/mudrets-bot/internal/tokenizer"
)

// ErrNotLoaded is returned by every operation called before LoadOnStartup.
var ErrNotLoaded = errors.New("engine: models not loaded")

// Backend persists model snapshots per namespace.
type Backend interface {
	// Load returns nil and no error when ns was never saved.
	Load(ctx context.Context, ns string) (*markov.Snapshot, error)
	Save(ctx context.Context, ns string, snap markov.Snapshot) error
	Namespaces(ctx context.Context) ([]string, error)
	// Incremental reports whether Save accepts partial snapshots.
	Incremental() bool
}

// Corrupt-state policies.
const (
	OnCorruptAbort = "abort"
	OnCorruptReset = "reset"
)

// Config controls an Engine.
type Config struct {
	// Order is the context length of namespaces created by this process.
	Order int
	// MaxWords bounds generation when callers pass a negative bound.
	MaxWords int
	// SaveInterval is the autosave period of Run. Defaults to 5m.
	SaveInterval time.Duration
	// ShutdownTimeout bounds the final flush of Run. Defaults to 10s.
	ShutdownTimeout time.Duration
	// OnCorrupt is OnCorruptAbort (default) or OnCorruptReset.
	OnCorrupt string
	// Retry is applied to saves and loads failing with ErrStoreUnavailable.
	Retry retry.Config
	// NewRand returns the random source of a new model. Nil seeds from the clock.
	NewRand func() *rand.Rand
}

// DefaultMaxWords is the generation bound when none is configured.
const DefaultMaxWords = 100

// Engine is safe for concurrent use.
type Engine struct {
	backend Backend
	cfg     Config
	log     *slog.Logger

	mu     sync.RWMutex
	models map[string]*markov.Model
	loaded bool

	// Held while a flush is writing; a channel so waiters can give up.
	saving chan struct{}
}

// New creates an engine over backend. A nil logger uses slog.Default().
func New(backend Backend, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Order < 1 {
		cfg.Order = markov.DefaultOrder
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = DefaultMaxWords
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 5 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.OnCorrupt == "" {
		cfg.OnCorrupt = OnCorruptAbort
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Retry.ShouldRetry = func(err error) bool { return errors.Is(err, markov.ErrStoreUnavailable) }
	cfg.Retry.Logger = logger

	return &Engine{
		backend: backend,
		cfg:     cfg,
		log:     logger,
		models:  make(map[string]*markov.Model),
		saving:  make(chan struct{}, 1),
	}
}

// Order returns the context length used for new namespaces.
func (e *Engine) Order() int { return e.cfg.Order }

// MaxWords returns the default generation bound.
func (e *Engine) MaxWords() int { return e.cfg.MaxWords }

// LoadOnStartup loads every namespace the backend knows about. It must be
// called once before any other operation. Corrupt namespaces either abort
// the load or start empty, depending on Config.OnCorrupt; a reset namespace
// is rewritten in full on the next flush.
func (e *Engine) LoadOnStartup(ctx context.Context) error {
	var names []string
	err := retry.Do(ctx, e.cfg.Retry, func() error {
		var err error
		names, err = e.backend.Namespaces(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}

	models := make(map[string]*markov.Model, len(names))
	for _, ns := range names {
		m, err := e.load(ctx, ns)
		if errors.Is(err, markov.ErrCorruptState) && e.cfg.OnCorrupt == OnCorruptReset {
			e.log.Warn("engine: corrupt namespace reset to empty", "ns", ns, "err", err)
			m = e.newModel(e.cfg.Order)
			m.Invalidate()
		} else if err != nil {
			return fmt.Errorf("load %q: %w", ns, err)
		}
		if m == nil {
			continue
		}
		st := m.Stats()
		if st.Order != e.cfg.Order {
			e.log.Warn("engine: namespace keeps its stored order", "ns", ns, "order", st.Order, "configured", e.cfg.Order)
		}
		e.log.Info("engine: model loaded", "ns", ns, "order", st.Order, "contexts", st.Contexts,
			"learned", st.Counters.Learned, "generated", st.Counters.Generated)
		models[ns] = m
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.models = models
	e.loaded = true
	return nil
}

func (e *Engine) load(ctx context.Context, ns string) (*markov.Model, error) {
	var snap *markov.Snapshot
	err := retry.Do(ctx, e.cfg.Retry, func() error {
		var err error
		snap, err = e.backend.Load(ctx, ns)
		return err
	})
	if err != nil || snap == nil {
		return nil, err
	}
	return markov.Restore(*snap, e.modelOptions()...)
}

func (e *Engine) modelOptions() []markov.Option {
	if e.cfg.NewRand == nil {
		return nil
	}
	return []markov.Option{markov.WithRand(e.cfg.NewRand())}
}

func (e *Engine) newModel(order int) *markov.Model {
	return markov.NewModel(order, e.modelOptions()...)
}

// lookup returns the model of ns, or nil when ns holds nothing yet.
func (e *Engine) lookup(ns string) (*markov.Model, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	return e.models[ns], nil
}

// model returns the model of ns, creating an empty one if needed.
func (e *Engine) model(ns string) (*markov.Model, error) {
	if m, err := e.lookup(ns); m != nil || err != nil {
		return m, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if m := e.models[ns]; m != nil {
		return m, nil
	}
	m := e.newModel(e.cfg.Order)
	e.models[ns] = m
	return m, nil
}

// OnTextReceived learns text into ns and returns the number of observations
// it contained. Messages are not de-duplicated.
func (e *Engine) OnTextReceived(ctx context.Context, ns, text string) (int, error) {
	m, err := e.model(ns)
	if err != nil {
		return 0, err
	}
	return m.LearnText(text), nil
}

// RequestGeneration generates text from a random context of ns, appending at
// most maxWords words; 0 returns the starting context alone and a negative
// value uses the configured bound. It fails with markov.ErrEmptyModel while ns has
// nothing learned.
func (e *Engine) RequestGeneration(ctx context.Context, ns string, maxWords int) (string, error) {
	return e.generate(ns, maxWords, nil)
}

// GenerateFrom generates text continuing the last Order words of seed.
func (e *Engine) GenerateFrom(ctx context.Context, ns, seed string, maxWords int) (string, error) {
	m, err := e.lookup(ns)
	if err != nil {
		return "", err
	}
	order := e.cfg.Order
	if m != nil {
		order = m.Order()
	}
	words := tokenizer.Words(seed)
	if len(words) < order {
		return "", fmt.Errorf("%w: seed has %d words, want at least %d", markov.ErrOrderMismatch, len(words), order)
	}
	return e.generate(ns, maxWords, markov.Context(words[len(words)-order:]))
}

func (e *Engine) generate(ns string, maxWords int, seed markov.Context) (string, error) {
	m, err := e.lookup(ns)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", markov.ErrEmptyModel
	}
	if maxWords < 0 {
		maxWords = e.cfg.MaxWords
	}
	return m.Generate(maxWords, seed)
}

// Successors returns the successor list of the context spelled by text. The
// text must hold exactly Order words.
func (e *Engine) Successors(ctx context.Context, ns, text string) ([]string, bool, error) {
	m, err := e.lookup(ns)
	if err != nil {
		return nil, false, err
	}
	words := markov.Context(tokenizer.Words(text))
	if m == nil {
		if len(words) != e.cfg.Order {
			return nil, false, fmt.Errorf("%w: got %d words, want %d", markov.ErrOrderMismatch, len(words), e.cfg.Order)
		}
		return nil, false, nil
	}
	if len(words) != m.Order() {
		return nil, false, fmt.Errorf("%w: got %d words, want %d", markov.ErrOrderMismatch, len(words), m.Order())
	}
	next, ok := m.Successors(words)
	return next, ok, nil
}

// Stats returns the diagnostic view of ns. Unknown namespaces report zeros.
func (e *Engine) Stats(ctx context.Context, ns string) (model.Stats, error) {
	m, err := e.lookup(ns)
	if err != nil {
		return model.Stats{}, err
	}
	if m == nil {
		return model.Stats{NS: ns, Order: e.cfg.Order}, nil
	}
	st := m.Stats()
	return model.Stats{
		NS:                ns,
		Order:             st.Order,
		MessagesLearned:   st.Counters.Learned,
		MessagesGenerated: st.Counters.Generated,
		ContextCount:      st.Contexts,
		SuccessorCount:    st.Successors,
		Variability:       st.Variability,
	}, nil
}

// Namespaces returns the namespaces held in memory, sorted.
func (e *Engine) Namespaces() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.models))
	for ns := range e.models {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Import replaces ns with the model in snap. The next flush writes it in full.
func (e *Engine) Import(ctx context.Context, ns string, snap markov.Snapshot) error {
	if _, err := e.lookup(ns); err != nil {
		return err
	}
	m, err := markov.Restore(snap, e.modelOptions()...)
	if err != nil {
		return fmt.Errorf("import %q: %w", ns, err)
	}
	m.Invalidate()

	e.mu.Lock()
	e.models[ns] = m
	e.mu.Unlock()
	return nil
}

// Export returns a full snapshot of ns. It reports false for unknown namespaces.
func (e *Engine) Export(ctx context.Context, ns string) (markov.Snapshot, bool, error) {
	m, err := e.lookup(ns)
	if err != nil || m == nil {
		return markov.Snapshot{}, false, err
	}
	return m.Snapshot(), true, nil
}

// Flush checkpoints every namespace with unsaved changes. Saves failing with
// ErrStoreUnavailable are retried with backoff; a save that still fails is
// queued again for the next flush and reported. Only one flush writes at a
// time; a caller waiting for a running flush gives up when ctx is done.
func (e *Engine) Flush(ctx context.Context) error {
	if _, err := e.lookup(""); err != nil {
		return err
	}

	select {
	case e.saving <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for running flush: %w", ctx.Err())
	}
	defer func() { <-e.saving }()

	e.mu.RLock()
	pending := make(map[string]*markov.Model, len(e.models))
	for ns, m := range e.models {
		pending[ns] = m
	}
	e.mu.RUnlock()

	names := make([]string, 0, len(pending))
	for ns := range pending {
		names = append(names, ns)
	}
	sort.Strings(names)

	full := !e.backend.Incremental()
	var errs []error
	for _, ns := range names {
		m := pending[ns]
		snap, ok := m.Checkpoint(full)
		if !ok {
			continue
		}

		start := time.Now()
		err := retry.Do(ctx, e.cfg.Retry, func() error {
			return e.backend.Save(ctx, ns, snap)
		})
		if err != nil {
			m.Requeue(snap)
			e.log.Error("engine: checkpoint failed", "ns", ns, "partial", snap.Partial, "entries", len(snap.Entries), "err", err)
			errs = append(errs, fmt.Errorf("save %q: %w", ns, err))
			continue
		}
		e.log.Info("engine: checkpoint saved", "ns", ns, "partial", snap.Partial,
			"entries", len(snap.Entries), "learned", snap.Counters.Learned,
			"generated", snap.Counters.Generated, "duration", time.Since(start))
	}
	return errors.Join(errs...)
}

// Run flushes every SaveInterval until ctx is cancelled, then performs a
// final flush bounded by ShutdownTimeout and returns its error.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SaveInterval)
	defer ticker.Stop()

	e.log.Info("engine: autosave started", "interval", e.cfg.SaveInterval)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine: final flush", "timeout", e.cfg.ShutdownTimeout)
			sctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
			defer cancel()
			return e.Flush(sctx)
		case <-ticker.C:
			if err := e.Flush(ctx); err != nil {
				e.log.Warn("engine: autosave incomplete", "err", err)
			}
		}
	}
}
