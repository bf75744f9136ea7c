package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/RedCat17/mudrets-bot/internal/markov"
)

// SQLiteStore is a SQLite-backed model store.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	retention int

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w: %w", markov.ErrStoreUnavailable, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, classify("open db", err)
	}
	// One connection: SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{
		db:        db,
		path:      dbPath,
		retention: DefaultCheckpointRetention,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, classify("migrate", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// DB returns the underlying connection.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// SetRetention sets how many checkpoint records are kept per namespace.
func (s *SQLiteStore) SetRetention(n int) {
	if n > 0 {
		s.retention = n
	}
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS namespaces (
		ns          TEXT PRIMARY KEY,
		chain_order INTEGER NOT NULL,
		codec       TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chains (
		ns         TEXT NOT NULL REFERENCES namespaces(ns),
		key        TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		next_words TEXT NOT NULL,
		PRIMARY KEY (ns, key)
	);
	CREATE INDEX IF NOT EXISTS idx_chains_ns_seq ON chains(ns, seq);

	CREATE TABLE IF NOT EXISTS stats (
		ns    TEXT NOT NULL,
		key   TEXT NOT NULL,
		value INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ns, key)
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id         TEXT PRIMARY KEY,
		ns         TEXT NOT NULL,
		partial    INTEGER NOT NULL,
		entries    INTEGER NOT NULL,
		contexts   INTEGER NOT NULL,
		successors INTEGER NOT NULL,
		learned    INTEGER NOT NULL,
		generated  INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_ns ON checkpoints(ns, id DESC);

	CREATE TABLE IF NOT EXISTS transport_state (
		transport TEXT NOT NULL,
		key       TEXT NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (transport, key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// classify wraps a driver error as ErrCorruptState when SQLite reports a
// damaged or foreign file, and as ErrStoreUnavailable otherwise.
func classify(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%s: %w: %w", op, markov.ErrCorruptState, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, markov.ErrStoreUnavailable, err)
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", markov.ErrCorruptState, fmt.Sprintf(format, args...))
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
