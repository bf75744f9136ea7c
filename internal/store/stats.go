package store

import (
	"context"
	"os"

	"github.com/RedCat17/mudrets-bot/internal/model"
)

// DBStats holds database-wide statistics.
type DBStats struct {
	DBPath      string                `json:"db_path" yaml:"db_path"`
	DBSizeBytes int64                 `json:"db_size_bytes" yaml:"db_size_bytes"`
	Namespaces  []model.NamespaceInfo `json:"namespaces" yaml:"namespaces"`
}

// Stats returns the database size and per-namespace totals as last saved.
func (s *SQLiteStore) Stats(ctx context.Context) (*DBStats, error) {
	st := &DBStats{DBPath: s.path}
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	ns, err := s.ListNamespaces(ctx)
	if err != nil {
		return st, err
	}
	st.Namespaces = ns
	return st, nil
}

// ListNamespaces returns the persisted namespaces with their sizes and counters.
func (s *SQLiteStore) ListNamespaces(ctx context.Context) ([]model.NamespaceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.ns, n.chain_order, n.created_at, n.updated_at,
		       (SELECT COUNT(*) FROM chains c WHERE c.ns = n.ns),
		       (SELECT COALESCE(SUM(json_array_length(c.next_words)), 0) FROM chains c WHERE c.ns = n.ns),
		       COALESCE((SELECT value FROM stats WHERE ns = n.ns AND key = ?), 0),
		       COALESCE((SELECT value FROM stats WHERE ns = n.ns AND key = ?), 0)
		FROM namespaces n ORDER BY n.ns`, StatTotalMessages, StatGeneratedMessages)
	if err != nil {
		return nil, classify("list namespaces", err)
	}
	defer rows.Close()

	var out []model.NamespaceInfo
	for rows.Next() {
		var info model.NamespaceInfo
		var created, updated string
		if err := rows.Scan(&info.NS, &info.Order, &created, &updated,
			&info.Contexts, &info.Successors, &info.Learned, &info.Generated); err != nil {
			return nil, classify("list namespaces", err)
		}
		info.CreatedAt = parseTime(created)
		info.UpdatedAt = parseTime(updated)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list namespaces", err)
	}
	return out, nil
}

// Checkpoints returns the most recent checkpoint records, newest first.
// An empty ns lists all namespaces.
func (s *SQLiteStore) Checkpoints(ctx context.Context, ns string, limit int) ([]model.Checkpoint, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, ns, partial, entries, contexts, successors, learned, generated, created_at
	          FROM checkpoints`
	args := []any{}
	if ns != "" {
		query += ` WHERE ns = ?`
		args = append(args, ns)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list checkpoints", err)
	}
	defer rows.Close()

	var out []model.Checkpoint
	for rows.Next() {
		var cp model.Checkpoint
		var created string
		if err := rows.Scan(&cp.ID, &cp.NS, &cp.Partial, &cp.Entries, &cp.Contexts,
			&cp.Successors, &cp.Learned, &cp.Generated, &created); err != nil {
			return nil, classify("list checkpoints", err)
		}
		cp.CreatedAt = parseTime(created)
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list checkpoints", err)
	}
	return out, nil
}
