package snapshot

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/RedCat17/mudrets-bot/internal/markov"
	"github.com/RedCat17/mudrets-bot/internal/tokenizer"
)

func newTestBackend(t *testing.T, format string) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(t.TempDir(), format)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	return b
}

func TestFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			b := newTestBackend(t, format)
			if b.Incremental() {
				t.Error("file backend must not be incremental")
			}

			snap, err := b.Load(ctx, "telegram:42")
			if err != nil || snap != nil {
				t.Fatalf("expected nil snapshot for missing namespace, got %v %v", snap, err)
			}

			want := sampleModel().Snapshot()
			if err := b.Save(ctx, "telegram:42", want); err != nil {
				t.Fatal(err)
			}
			if err := b.Save(ctx, "a/b", markov.NewModel(2).Snapshot()); err != nil {
				t.Fatal(err)
			}

			got, err := b.Load(ctx, "telegram:42")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(*got, want) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, want)
			}

			names, err := b.Namespaces(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(names, []string{"a/b", "telegram:42"}) {
				t.Errorf("unexpected namespaces %q", names)
			}
		})
	}
}

func TestFileBackendRejectsPartial(t *testing.T) {
	b := newTestBackend(t, "")
	m := sampleModel()
	partial, _ := m.Checkpoint(false)
	if err := b.Save(context.Background(), "ns", partial); err == nil {
		t.Error("expected partial snapshot to be rejected")
	}
}

func TestFileBackendCorrupt(t *testing.T) {
	b := newTestBackend(t, FormatJSON)
	os.WriteFile(b.Path("ns"), []byte("{"), 0o644)
	if _, err := b.Load(context.Background(), "ns"); !errors.Is(err, markov.ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}

func TestNewFileBackendUnknownFormat(t *testing.T) {
	if _, err := NewFileBackend(t.TempDir(), "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFileBackendInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			b := newTestBackend(t, format)

			m := markov.NewModel(2)
			m.LearnText("a b \xff")
			m.LearnText("a b \xfe")
			want := m.Snapshot()
			if err := b.Save(ctx, "latin1", want); err != nil {
				t.Fatal(err)
			}

			got, err := b.Load(ctx, "latin1")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(*got, want) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, want)
			}
			restored, err := markov.Restore(*got)
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if succ, _ := restored.Successors(markov.Context{"a", "b"}); !reflect.DeepEqual(succ, []string{tokenizer.Replacement}) {
				t.Errorf("expected one replacement successor, got %q", succ)
			}
		})
	}
}
