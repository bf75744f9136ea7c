package markov

import (
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func newTestModel(t *testing.T, order int) *Model {
	t.Helper()
	return NewModel(order, WithRand(rand.New(rand.NewSource(42))))
}

var corpus = []string{
	"the cat sat on the mat",
	"the cat ran after the dog",
	"a dog sat on the cat",
	"the dog ran home",
	"on the mat the cat slept",
}

func TestModel_TheCatExample(t *testing.T) {
	m := newTestModel(t, 2)
	m.LearnText("the cat sat")
	m.LearnText("the cat ran")

	got, ok := m.Successors(Context{"the", "cat"})
	if !ok {
		t.Fatal("expected (the, cat) to be present")
	}
	if !reflect.DeepEqual(got, []string{"sat", "ran"}) {
		t.Errorf("expected [sat ran], got %q", got)
	}

	st := m.Stats()
	if st.Contexts != 3 {
		t.Errorf("expected 3 contexts, got %d", st.Contexts)
	}
	if st.Successors != 3 {
		t.Errorf("expected 3 successors, got %d", st.Successors)
	}
	if st.Variability != 1.0 {
		t.Errorf("expected variability 1.0, got %v", st.Variability)
	}
	if st.Counters.Learned != 2 {
		t.Errorf("expected 2 learned messages, got %d", st.Counters.Learned)
	}

	end, _ := m.Successors(Context{"cat", "sat"})
	if !reflect.DeepEqual(end, []string{Sentinel}) {
		t.Errorf("expected sentinel successor, got %q", end)
	}
}

func TestModel_LearnCountsShortMessages(t *testing.T) {
	m := newTestModel(t, 2)
	if n := m.LearnText("hi"); n != 0 {
		t.Errorf("expected 0 observations, got %d", n)
	}
	if n := m.LearnText(""); n != 0 {
		t.Errorf("expected 0 observations, got %d", n)
	}
	st := m.Stats()
	if st.Counters.Learned != 2 {
		t.Errorf("expected learned counter 2, got %d", st.Counters.Learned)
	}
	if st.Contexts != 0 {
		t.Errorf("expected empty chain, got %d contexts", st.Contexts)
	}
}

func TestModel_LearnIsIdempotentPerObservation(t *testing.T) {
	m := newTestModel(t, 2)
	m.LearnText("the cat sat")
	c1, s1 := m.Size()
	m.LearnText("the cat sat")
	c2, s2 := m.Size()
	if c1 != c2 || s1 != s2 {
		t.Errorf("relearning changed size: (%d,%d) -> (%d,%d)", c1, s1, c2, s2)
	}
}

func TestModel_GenerateEmpty(t *testing.T) {
	m := newTestModel(t, 2)
	out, err := m.Generate(10, nil)
	if !errors.Is(err, ErrEmptyModel) {
		t.Fatalf("expected ErrEmptyModel, got %q, %v", out, err)
	}
	if got := m.Counters().Generated; got != 0 {
		t.Errorf("expected generated counter untouched, got %d", got)
	}

	// Short messages are learned but produce no contexts.
	m.LearnText("hi")
	if _, err := m.Generate(10, nil); !errors.Is(err, ErrEmptyModel) {
		t.Fatalf("expected ErrEmptyModel after learning only short text, got %v", err)
	}
}

func TestModel_GenerateValidity(t *testing.T) {
	m := newTestModel(t, 2)
	for _, text := range corpus {
		m.LearnText(text)
	}

	for i := 0; i < 200; i++ {
		out, err := m.Generate(20, nil)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		words := strings.Fields(out)
		if len(words) < 2 {
			t.Fatalf("expected at least the seed context, got %q", out)
		}
		for j := 2; j < len(words); j++ {
			succ, ok := m.Successors(Context{words[j-2], words[j-1]})
			if !ok {
				t.Fatalf("%q: context (%s %s) unknown", out, words[j-2], words[j-1])
			}
			found := false
			for _, s := range succ {
				if s == words[j] {
					found = true
				}
			}
			if !found {
				t.Fatalf("%q: %q never followed (%s %s)", out, words[j], words[j-2], words[j-1])
			}
		}
	}
	if got := m.Counters().Generated; got != 200 {
		t.Errorf("expected 200 generated, got %d", got)
	}
}

func TestModel_GenerateTerminates(t *testing.T) {
	m := newTestModel(t, 1)
	// A cycle without a sentinel: a -> b -> a -> ...
	m.Learn([]string{"a", "b", "a"})

	for _, max := range []int{0, 1, 5, 50} {
		out, err := m.Generate(max, Context{"a"})
		if err != nil {
			t.Fatal(err)
		}
		if n := len(strings.Fields(out)); n != 1+max {
			t.Errorf("max=%d: expected %d tokens, got %d (%q)", max, 1+max, n, out)
		}
	}
}

func TestModel_GenerateStopsOnSentinel(t *testing.T) {
	m := newTestModel(t, 2)
	m.LearnText("the cat sat")

	out, err := m.Generate(100, Context{"the", "cat"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "the cat sat" {
		t.Errorf("expected %q, got %q", "the cat sat", out)
	}
}

func TestModel_GenerateUnknownSeed(t *testing.T) {
	m := newTestModel(t, 2)
	m.LearnText("the cat sat")

	out, err := m.Generate(100, Context{"no", "such"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "no such" {
		t.Errorf("expected seed echoed back, got %q", out)
	}

	if _, err := m.Generate(100, Context{"one"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch for short seed, got %v", err)
	}
}

func TestModel_CheckpointTracksChanges(t *testing.T) {
	m := newTestModel(t, 2)
	if _, ok := m.Checkpoint(false); ok {
		t.Fatal("expected no checkpoint for a fresh model")
	}

	m.LearnText("the cat sat")
	snap, ok := m.Checkpoint(false)
	if !ok {
		t.Fatal("expected checkpoint after learning")
	}
	if !snap.Partial || len(snap.Entries) != 2 || snap.Counters.Learned != 1 {
		t.Fatalf("unexpected checkpoint: %+v", snap)
	}
	if snap.Entries[0].Seq != 0 || snap.Entries[1].Seq != 1 {
		t.Errorf("expected entries sorted by seq, got %+v", snap.Entries)
	}
	if m.Dirty() {
		t.Error("expected model clean after checkpoint")
	}

	m.LearnText("the cat ran")
	snap, _ = m.Checkpoint(false)
	if len(snap.Entries) != 2 {
		t.Fatalf("expected 2 changed contexts, got %d", len(snap.Entries))
	}
	if !reflect.DeepEqual(snap.Entries[0].Next, []string{"sat", "ran"}) {
		t.Errorf("expected complete successor list, got %q", snap.Entries[0].Next)
	}

	// Relearning adds nothing new; only counters change.
	m.LearnText("the cat ran")
	snap, ok = m.Checkpoint(false)
	if !ok || len(snap.Entries) != 0 || snap.Counters.Learned != 3 {
		t.Errorf("expected counters-only checkpoint, got ok=%v %+v", ok, snap)
	}
}

func TestModel_RequeueRestoresPending(t *testing.T) {
	m := newTestModel(t, 2)
	m.LearnText("the cat sat")
	snap, _ := m.Checkpoint(false)
	m.Requeue(snap)

	again, ok := m.Checkpoint(false)
	if !ok {
		t.Fatal("expected requeued changes")
	}
	if len(again.Entries) != len(snap.Entries) || !again.Partial {
		t.Errorf("expected requeued partial checkpoint, got %+v", again)
	}

	m.Requeue(Snapshot{Order: 2})
	next, ok := m.Checkpoint(false)
	if !ok || next.Partial {
		t.Errorf("expected a full checkpoint after requeueing a full snapshot, got ok=%v partial=%v", ok, next.Partial)
	}
}

func TestModel_InvalidateForcesFull(t *testing.T) {
	m := newTestModel(t, 2)
	m.LearnText("the cat sat")
	m.Checkpoint(false)

	m.Invalidate()
	snap, ok := m.Checkpoint(false)
	if !ok || snap.Partial || len(snap.Entries) != 2 {
		t.Errorf("expected full checkpoint with 2 entries, got ok=%v %+v", ok, snap)
	}
}

func TestModel_SnapshotRestoreRoundTrip(t *testing.T) {
	m := newTestModel(t, 2)
	for _, text := range corpus {
		m.LearnText(text)
	}
	m.Generate(10, nil)

	restored, err := Restore(m.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(restored.Stats(), m.Stats()) {
		t.Errorf("stats differ: %+v vs %+v", restored.Stats(), m.Stats())
	}
	if !reflect.DeepEqual(restored.Snapshot(), m.Snapshot()) {
		t.Error("snapshot of restored model differs from original")
	}
	if restored.Dirty() {
		t.Error("expected restored model to be clean")
	}
}

func TestRestore_Corrupt(t *testing.T) {
	good := Entry{Context: Context{"a", "b"}, Next: []string{"c"}}
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"partial", Snapshot{Order: 2, Partial: true}},
		{"zero order", Snapshot{Order: 0}},
		{"negative counter", Snapshot{Order: 2, Counters: Counters{Learned: -1}}},
		{"short context", Snapshot{Order: 2, Entries: []Entry{{Context: Context{"a"}, Next: []string{"b"}}}}},
		{"no successors", Snapshot{Order: 2, Entries: []Entry{{Context: Context{"a", "b"}}}}},
		{"duplicate successor", Snapshot{Order: 2, Entries: []Entry{{Context: Context{"a", "b"}, Next: []string{"c", "c"}}}}},
		{"duplicate context", Snapshot{Order: 2, Entries: []Entry{good, good}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Restore(tt.snap); !errors.Is(err, ErrCorruptState) {
				t.Errorf("expected ErrCorruptState, got %v", err)
			}
		})
	}
}

func TestModel_ConcurrentUse(t *testing.T) {
	m := newTestModel(t, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.LearnText(corpus[(i+j)%len(corpus)])
				m.Generate(10, nil)
				m.Stats()
				if j%10 == 0 {
					m.Checkpoint(false)
				}
			}
		}(i)
	}
	wg.Wait()

	st := m.Stats()
	if st.Counters.Learned != 400 {
		t.Errorf("expected 400 learned, got %d", st.Counters.Learned)
	}
	if st.Counters.Generated != 400 {
		t.Errorf("expected 400 generated, got %d", st.Counters.Generated)
	}
}

func TestVariability(t *testing.T) {
	if v := Variability(0, 0); v != 0 {
		t.Errorf("expected 0 for empty chain, got %v", v)
	}
	if v := Variability(4, 6); v != 1.5 {
		t.Errorf("expected 1.5, got %v", v)
	}
}
