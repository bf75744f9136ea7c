package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RedCat17/mudrets-bot/internal/markov"
)

// Incremental reports that Save accepts partial snapshots.
func (s *SQLiteStore) Incremental() bool { return true }

// Load reads the model stored under ns. It returns nil and no error when the
// namespace has never been saved.
func (s *SQLiteStore) Load(ctx context.Context, ns string) (*markov.Snapshot, error) {
	var order int
	var codec string
	err := s.db.QueryRowContext(ctx,
		`SELECT chain_order, codec FROM namespaces WHERE ns = ?`, ns).Scan(&order, &codec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("load namespace", err)
	}
	if codec != markov.CodecVersion {
		return nil, corrupt("namespace %q uses unknown key codec %q", ns, codec)
	}

	snap := &markov.Snapshot{Order: order}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, seq, next_words FROM chains WHERE ns = ? ORDER BY seq, key`, ns)
	if err != nil {
		return nil, classify("load chain", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, nextJSON string
		var seq int
		if err := rows.Scan(&key, &seq, &nextJSON); err != nil {
			return nil, corrupt("namespace %q: %v", ns, err)
		}
		c, err := markov.DecodeContext(key)
		if err != nil {
			return nil, fmt.Errorf("namespace %q: %w", ns, err)
		}
		var next []string
		if err := json.Unmarshal([]byte(nextJSON), &next); err != nil {
			return nil, corrupt("namespace %q: successors of %s: %v", ns, c, err)
		}
		snap.Entries = append(snap.Entries, markov.Entry{Seq: seq, Context: c, Next: next})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load chain", err)
	}

	counters, err := s.loadCounters(ctx, ns)
	if err != nil {
		return nil, err
	}
	snap.Counters = counters
	return snap, nil
}

func (s *SQLiteStore) loadCounters(ctx context.Context, ns string) (markov.Counters, error) {
	var c markov.Counters
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM stats WHERE ns = ?`, ns)
	if err != nil {
		return c, classify("load stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return c, corrupt("namespace %q stats: %v", ns, err)
		}
		switch key {
		case StatTotalMessages:
			c.Learned = value
		case StatGeneratedMessages:
			c.Generated = value
		}
	}
	if err := rows.Err(); err != nil {
		return c, classify("load stats", err)
	}
	return c, nil
}

// Save writes snap for ns in one transaction. A partial snapshot upserts the
// contexts it carries; a full snapshot replaces every context of ns.
// Counters are always overwritten.
func (s *SQLiteStore) Save(ctx context.Context, ns string, snap markov.Snapshot) error {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin save", err)
	}
	defer tx.Rollback()

	var order int
	err = tx.QueryRowContext(ctx, `SELECT chain_order FROM namespaces WHERE ns = ?`, ns).Scan(&order)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO namespaces (ns, chain_order, codec, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			ns, snap.Order, markov.CodecVersion, ts, ts)
		if err != nil {
			return classify("insert namespace", err)
		}
	case err != nil:
		return classify("read namespace", err)
	case order != snap.Order && snap.Partial:
		return fmt.Errorf("save %q: %w: stored order %d, snapshot order %d", ns, markov.ErrOrderMismatch, order, snap.Order)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE namespaces SET chain_order = ?, codec = ?, updated_at = ? WHERE ns = ?`,
			snap.Order, markov.CodecVersion, ts, ns)
		if err != nil {
			return classify("update namespace", err)
		}
	}

	if !snap.Partial {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chains WHERE ns = ?`, ns); err != nil {
			return classify("clear chain", err)
		}
	}

	if len(snap.Entries) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO chains (ns, key, seq, next_words) VALUES (?, ?, ?, ?)
			 ON CONFLICT(ns, key) DO UPDATE SET next_words = excluded.next_words`)
		if err != nil {
			return classify("prepare chain upsert", err)
		}
		defer stmt.Close()

		for _, e := range snap.Entries {
			next, err := json.Marshal(e.Next)
			if err != nil {
				return fmt.Errorf("encode successors of %s: %w", e.Context, err)
			}
			if _, err := stmt.ExecContext(ctx, ns, markov.EncodeContext(e.Context), e.Seq, string(next)); err != nil {
				return classify("upsert chain", err)
			}
		}
	}

	for key, value := range map[string]int64{
		StatTotalMessages:     snap.Counters.Learned,
		StatGeneratedMessages: snap.Counters.Generated,
	} {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stats (ns, key, value) VALUES (?, ?, ?)
			 ON CONFLICT(ns, key) DO UPDATE SET value = excluded.value`, ns, key, value)
		if err != nil {
			return classify("upsert stats", err)
		}
	}

	var contexts, successors int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(json_array_length(next_words)), 0) FROM chains WHERE ns = ?`, ns).
		Scan(&contexts, &successors)
	if err != nil {
		return classify("count chain", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, ns, partial, entries, contexts, successors, learned, generated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), ns, snap.Partial, len(snap.Entries), contexts, successors,
		snap.Counters.Learned, snap.Counters.Generated, ts)
	if err != nil {
		return classify("record checkpoint", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE ns = ? AND id NOT IN (
			SELECT id FROM checkpoints WHERE ns = ? ORDER BY id DESC LIMIT ?)`, ns, ns, s.retention)
	if err != nil {
		return classify("prune checkpoints", err)
	}

	if err := tx.Commit(); err != nil {
		return classify("commit save", err)
	}
	return nil
}

// Namespaces returns every saved namespace in name order.
func (s *SQLiteStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ns FROM namespaces ORDER BY ns`)
	if err != nil {
		return nil, classify("list namespaces", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, classify("list namespaces", err)
		}
		out = append(out, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list namespaces", err)
	}
	return out, nil
}

// Drop deletes everything stored for ns.
func (s *SQLiteStore) Drop(ctx context.Context, ns string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin drop", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM chains WHERE ns = ?`,
		`DELETE FROM stats WHERE ns = ?`,
		`DELETE FROM checkpoints WHERE ns = ?`,
		`DELETE FROM namespaces WHERE ns = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, ns); err != nil {
			return classify("drop namespace", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("commit drop", err)
	}
	return nil
}
