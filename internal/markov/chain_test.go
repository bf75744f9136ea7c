package markov

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestChain_AddIsIdempotent(t *testing.T) {
	c := NewChain(2)
	ctx := Context{"the", "cat"}

	added, err := c.Add(ctx, "sat")
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = c.Add(ctx, "sat")
	if err != nil || added {
		t.Fatalf("second add: added=%v err=%v", added, err)
	}

	got, ok := c.Successors(ctx)
	if !ok {
		t.Fatal("expected context to be present")
	}
	if !reflect.DeepEqual(got, []string{"sat"}) {
		t.Errorf("expected [sat], got %q", got)
	}
	if contexts, successors := c.Size(); contexts != 1 || successors != 1 {
		t.Errorf("expected size (1,1), got (%d,%d)", contexts, successors)
	}
}

func TestChain_PreservesInsertionOrder(t *testing.T) {
	c := NewChain(2)
	ctx := Context{"the", "cat"}
	for _, next := range []string{"sat", "ran", "sat", "", "ran", "slept"} {
		if _, err := c.Add(ctx, next); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := c.Successors(ctx)
	want := []string{"sat", "ran", "", "slept"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestChain_SuccessorsReturnsCopy(t *testing.T) {
	c := NewChain(1)
	c.Add(Context{"a"}, "b")
	got, _ := c.Successors(Context{"a"})
	got[0] = "mutated"
	again, _ := c.Successors(Context{"a"})
	if again[0] != "b" {
		t.Errorf("chain state leaked through Successors: %q", again)
	}
}

func TestChain_ContextIsCopiedOnAdd(t *testing.T) {
	c := NewChain(2)
	tokens := []string{"the", "cat"}
	c.Add(Context(tokens), "sat")
	tokens[0] = "a"

	if _, ok := c.Successors(Context{"the", "cat"}); !ok {
		t.Error("expected stored context to be unaffected by caller mutation")
	}
}

func TestChain_OrderMismatch(t *testing.T) {
	c := NewChain(2)
	_, err := c.Add(Context{"only"}, "x")
	if !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected no contexts after failed add, got %d", c.Len())
	}
}

func TestChain_RandomContext(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := NewChain(2)

	if _, err := c.RandomContext(rng); !errors.Is(err, ErrEmptyModel) {
		t.Fatalf("expected ErrEmptyModel on empty chain, got %v", err)
	}

	c.Add(Context{"a", "b"}, "c")
	c.Add(Context{"b", "c"}, "d")
	c.Add(Context{"c", "d"}, "")

	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		ctx, err := c.RandomContext(rng)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := c.Successors(ctx); !ok {
			t.Fatalf("random context %s is not in the chain", ctx)
		}
		seen[ctx.Key()]++
	}
	if len(seen) != 3 {
		t.Errorf("expected all 3 contexts to be drawn, got %d", len(seen))
	}
}

func TestChain_DefaultOrder(t *testing.T) {
	if got := NewChain(0).Order(); got != DefaultOrder {
		t.Errorf("expected default order %d, got %d", DefaultOrder, got)
	}
}

func TestChain_RangeInCreationOrder(t *testing.T) {
	c := NewChain(1)
	c.Add(Context{"b"}, "x")
	c.Add(Context{"a"}, "y")
	c.Add(Context{"b"}, "z")

	var keys []string
	var seqs []int
	c.Range(func(seq int, ctx Context, next []string) bool {
		keys = append(keys, ctx[0])
		seqs = append(seqs, seq)
		return true
	})
	if !reflect.DeepEqual(keys, []string{"b", "a"}) {
		t.Errorf("expected creation order [b a], got %q", keys)
	}
	if !reflect.DeepEqual(seqs, []int{0, 1}) {
		t.Errorf("expected seqs [0 1], got %v", seqs)
	}
}
