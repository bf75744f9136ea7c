package markov

import (
	"fmt"
	"math/rand"
)

// DefaultOrder is the number of tokens in a context when none is configured.
const DefaultOrder = 2

// Chain maps contexts to the de-duplicated list of tokens observed after
// them. Successors keep the order in which they were first observed, and
// contexts keep the order in which they were first created.
//
// Chain is not safe for concurrent use; Model provides the locking.
type Chain struct {
	order      int
	keys       []string
	entries    map[string]*entry
	successors int
}

type entry struct {
	seq     int
	context Context
	next    []string
	seen    map[string]struct{}
}

// NewChain returns an empty chain. Orders below 1 fall back to DefaultOrder.
func NewChain(order int) *Chain {
	if order < 1 {
		order = DefaultOrder
	}
	return &Chain{
		order:   order,
		entries: make(map[string]*entry),
	}
}

// Order returns the context length of the chain.
func (c *Chain) Order() int { return c.order }

// Len returns the number of distinct contexts.
func (c *Chain) Len() int { return len(c.keys) }

// Size returns the number of contexts and the total length of all successor lists.
func (c *Chain) Size() (contexts, successors int) {
	return len(c.keys), c.successors
}

// Successors returns a copy of the successor list for ctx.
func (c *Chain) Successors(ctx Context) ([]string, bool) {
	e := c.entries[EncodeContext(ctx)]
	if e == nil {
		return nil, false
	}
	out := make([]string, len(e.next))
	copy(out, e.next)
	return out, true
}

// Add records that next followed ctx. It reports whether the successor list
// changed; adding a known successor again is a no-op.
func (c *Chain) Add(ctx Context, next string) (bool, error) {
	if len(ctx) != c.order {
		return false, fmt.Errorf("%w: got %d tokens, want %d", ErrOrderMismatch, len(ctx), c.order)
	}
	key := EncodeContext(ctx)
	e := c.entries[key]
	if e == nil {
		e = &entry{
			seq:     len(c.keys),
			context: ctx.Clone(),
			seen:    make(map[string]struct{}, 1),
		}
		c.entries[key] = e
		c.keys = append(c.keys, key)
	}
	if _, ok := e.seen[next]; ok {
		return false, nil
	}
	e.seen[next] = struct{}{}
	e.next = append(e.next, next)
	c.successors++
	return true, nil
}

// RandomContext picks one existing context uniformly at random.
func (c *Chain) RandomContext(rng *rand.Rand) (Context, error) {
	if len(c.keys) == 0 {
		return nil, ErrEmptyModel
	}
	e := c.entries[c.keys[rng.Intn(len(c.keys))]]
	return e.context.Clone(), nil
}

// Range calls fn for every context in creation order until fn returns false.
// The slices passed to fn must not be retained or modified.
func (c *Chain) Range(fn func(seq int, ctx Context, next []string) bool) {
	for _, key := range c.keys {
		e := c.entries[key]
		if !fn(e.seq, e.context, e.next) {
			return
		}
	}
}

func (c *Chain) lookup(key string) *entry {
	return c.entries[key]
}
