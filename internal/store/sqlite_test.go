package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RedCat17/mudrets-bot/internal/markov"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	m := markov.NewModel(2)
	m.LearnText("the cat sat")
	if err := s.Save(ctx, "ns", m.Snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	snap, err := s.Load(ctx, "ns")
	if err != nil || snap == nil {
		t.Fatalf("load after reopen: %v %v", snap, err)
	}
	if len(snap.Entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(snap.Entries))
	}
}

func TestOpenGarbageFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(dbPath, []byte(strings.Repeat("not a database ", 400)), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewSQLiteStore(dbPath)
	if err == nil {
		s.Close()
		t.Fatal("expected error opening a non-database file")
	}
	if !errors.Is(err, markov.ErrCorruptState) && !errors.Is(err, markov.ErrStoreUnavailable) {
		t.Errorf("expected a classified error, got %v", err)
	}
}

func TestTransportState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.LoadState(ctx, "telegram", "offset")
	if err != nil {
		t.Fatalf("load missing state: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	if err := s.SaveState(ctx, "telegram", "offset", "41"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveState(ctx, "telegram", "offset", "42"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveState(ctx, "matrix", "offset", "other"); err != nil {
		t.Fatal(err)
	}

	v, _ = s.LoadState(ctx, "telegram", "offset")
	if v != "42" {
		t.Errorf("expected 42, got %q", v)
	}
}
