package markov

import (
	"fmt"
	"math/rand"
)

// walk seeds the output with seed (or a random context when seed is empty)
// and appends up to maxWords successors. It stops early when the current
// context has no entry or when the sentinel is drawn.
func walk(c *Chain, rng *rand.Rand, maxWords int, seed Context) ([]string, error) {
	if len(seed) == 0 {
		var err error
		seed, err = c.RandomContext(rng)
		if err != nil {
			return nil, err
		}
	} else if len(seed) != c.order {
		return nil, fmt.Errorf("%w: seed has %d tokens, want %d", ErrOrderMismatch, len(seed), c.order)
	}

	out := make([]string, 0, len(seed)+max(maxWords, 0))
	out = append(out, seed...)
	for i := 0; i < maxWords; i++ {
		e := c.lookup(EncodeContext(out[len(out)-c.order:]))
		if e == nil {
			break
		}
		next := e.next[rng.Intn(len(e.next))]
		out = append(out, next)
		if next == Sentinel {
			break
		}
	}
	return out, nil
}
