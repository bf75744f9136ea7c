// Package markov implements a fixed-order Markov chain over word tokens:
// incremental learning, random text generation and the snapshot contract
// used by persistence backends.
package markov

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/RedCat17/mudrets-bot/internal/tokenizer"
)

// Sentinel is the end-of-message token.
const Sentinel = tokenizer.Sentinel

// Counters are the aggregate message counts of a model.
type Counters struct {
	Learned   int64 `json:"total_messages" yaml:"total_messages"`
	Generated int64 `json:"generated_messages" yaml:"generated_messages"`
}

// Stats is a diagnostic view of a model.
type Stats struct {
	Order       int
	Counters    Counters
	Contexts    int
	Successors  int
	Variability float64
}

// Variability returns successors/contexts, or 0 for an empty chain.
func Variability(contexts, successors int) float64 {
	if contexts == 0 {
		return 0
	}
	return float64(successors) / float64(contexts)
}

// Entry is one context with its successor list. Seq is the creation index
// of the context within its chain.
type Entry struct {
	Seq     int
	Context Context
	Next    []string
}

// Snapshot is a self-contained copy of a model's state. A partial snapshot
// only carries the entries changed since the previous checkpoint; counters
// are always complete.
type Snapshot struct {
	Order    int
	Counters Counters
	Entries  []Entry
	Partial  bool
}

// Option configures a Model.
type Option func(*Model)

// WithRand sets the random source used for generation.
func WithRand(rng *rand.Rand) Option {
	return func(m *Model) { m.rng = rng }
}

// Model is the chain plus its counters. All methods are safe for concurrent
// use: learning, generation and checkpoints take an exclusive lock, read-only
// queries share a read lock.
type Model struct {
	mu       sync.RWMutex
	chain    *Chain
	counters Counters
	rng      *rand.Rand

	// Pending changes since the last checkpoint.
	dirty         map[string]struct{}
	countersDirty bool
	full          bool
}

// NewModel returns an empty model with the given context order.
func NewModel(order int, opts ...Option) *Model {
	m := &Model{
		chain: NewChain(order),
		dirty: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m
}

// Restore rebuilds a model from a full snapshot. Snapshots that could not
// have been produced by a model (wrong context length, empty or duplicated
// successors, negative counters) fail with ErrCorruptState.
func Restore(s Snapshot, opts ...Option) (*Model, error) {
	if s.Partial {
		return nil, fmt.Errorf("%w: cannot restore from a partial snapshot", ErrCorruptState)
	}
	if s.Order < 1 {
		return nil, fmt.Errorf("%w: invalid order %d", ErrCorruptState, s.Order)
	}
	if s.Counters.Learned < 0 || s.Counters.Generated < 0 {
		return nil, fmt.Errorf("%w: negative counters", ErrCorruptState)
	}

	m := NewModel(s.Order, opts...)
	for _, e := range s.Entries {
		if len(e.Context) != s.Order {
			return nil, fmt.Errorf("%w: context %s has %d tokens, want %d", ErrCorruptState, e.Context, len(e.Context), s.Order)
		}
		if len(e.Next) == 0 {
			return nil, fmt.Errorf("%w: context %s has no successors", ErrCorruptState, e.Context)
		}
		if _, ok := m.chain.Successors(e.Context); ok {
			return nil, fmt.Errorf("%w: duplicate context %s", ErrCorruptState, e.Context)
		}
		for _, next := range e.Next {
			added, err := m.chain.Add(e.Context, next)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
			}
			if !added {
				return nil, fmt.Errorf("%w: duplicate successor %q for context %s", ErrCorruptState, next, e.Context)
			}
		}
	}
	m.counters = s.Counters
	return m, nil
}

// Order returns the context length.
func (m *Model) Order() int {
	return m.chain.Order()
}

// Learn records every observation in tokens and bumps the learned counter
// once. It returns the number of observations, duplicates included.
func (m *Model) Learn(tokens []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	obs := Observations(tokens, m.chain.Order())
	for _, o := range obs {
		// Contexts built by Observations always have the chain's order.
		added, _ := m.chain.Add(o.Context, o.Next)
		if added {
			m.dirty[EncodeContext(o.Context)] = struct{}{}
		}
	}
	m.counters.Learned++
	m.countersDirty = true
	return len(obs)
}

// LearnText tokenizes text and learns it.
func (m *Model) LearnText(text string) int {
	return m.Learn(tokenizer.Tokenize(text))
}

// Generate produces text by walking the chain from seed, or from a random
// context when seed is empty, appending at most maxWords tokens. It fails
// with ErrEmptyModel when there is nothing to start from. The generated
// counter is bumped once per successful call.
func (m *Model) Generate(maxWords int, seed Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := walk(m.chain, m.rng, maxWords, seed)
	if err != nil {
		return "", err
	}
	m.counters.Generated++
	m.countersDirty = true
	return tokenizer.Join(out), nil
}

// Successors returns a copy of the successor list of ctx.
func (m *Model) Successors(ctx Context) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chain.Successors(ctx)
}

// Size returns the context count and the total successor count.
func (m *Model) Size() (contexts, successors int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chain.Size()
}

// Counters returns the current message counters.
func (m *Model) Counters() Counters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters
}

// Stats returns counters and chain size in one consistent read.
func (m *Model) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	contexts, successors := m.chain.Size()
	return Stats{
		Order:       m.chain.Order(),
		Counters:    m.counters,
		Contexts:    contexts,
		Successors:  successors,
		Variability: Variability(contexts, successors),
	}
}

// Snapshot returns a full deep copy of the model. It does not affect the
// pending-change tracking used by Checkpoint.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(false)
}

// Checkpoint returns the changes since the previous checkpoint and clears
// them. When nothing changed it returns false. The snapshot is partial
// unless full is set or the model was invalidated; a full snapshot is meant
// to replace whatever a backend holds for the model.
//
// If persisting the snapshot fails, hand it back with Requeue.
func (m *Model) Checkpoint(full bool) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full && len(m.dirty) == 0 && !m.countersDirty {
		return Snapshot{}, false
	}
	snap := m.snapshotLocked(!full && !m.full)
	m.dirty = make(map[string]struct{})
	m.countersDirty = false
	m.full = false
	return snap, true
}

// Requeue marks the contents of a checkpoint that failed to persist as
// pending again.
func (m *Model) Requeue(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range s.Entries {
		m.dirty[EncodeContext(e.Context)] = struct{}{}
	}
	m.countersDirty = true
	if !s.Partial {
		m.full = true
	}
}

// Invalidate forces the next checkpoint to be full.
func (m *Model) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.full = true
}

// Dirty reports whether there are changes not yet checkpointed.
func (m *Model) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.full || len(m.dirty) > 0 || m.countersDirty
}

func (m *Model) snapshotLocked(partial bool) Snapshot {
	snap := Snapshot{
		Order:    m.chain.Order(),
		Counters: m.counters,
		Partial:  partial,
	}
	if partial {
		snap.Entries = make([]Entry, 0, len(m.dirty))
		for key := range m.dirty {
			if e := m.chain.lookup(key); e != nil {
				snap.Entries = append(snap.Entries, copyEntry(e.seq, e.context, e.next))
			}
		}
		sort.Slice(snap.Entries, func(i, j int) bool {
			return snap.Entries[i].Seq < snap.Entries[j].Seq
		})
		return snap
	}

	snap.Entries = make([]Entry, 0, m.chain.Len())
	m.chain.Range(func(seq int, ctx Context, next []string) bool {
		snap.Entries = append(snap.Entries, copyEntry(seq, ctx, next))
		return true
	})
	return snap
}

func copyEntry(seq int, ctx Context, next []string) Entry {
	n := make([]string, len(next))
	copy(n, next)
	return Entry{Seq: seq, Context: ctx.Clone(), Next: n}
}
