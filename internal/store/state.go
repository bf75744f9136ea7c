package store

import (
	"context"
	"database/sql"
	"errors"
)

// SaveState upserts a transport-specific value, such as a polling offset or
// a sync token.
func (s *SQLiteStore) SaveState(ctx context.Context, transport, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transport_state (transport, key, value) VALUES (?, ?, ?)
		ON CONFLICT(transport, key) DO UPDATE SET value = excluded.value`,
		transport, key, value)
	if err != nil {
		return classify("save transport state", err)
	}
	return nil
}

// LoadState returns a stored transport value, or "" when none was saved.
func (s *SQLiteStore) LoadState(ctx context.Context, transport, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM transport_state WHERE transport = ? AND key = ?`, transport, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify("load transport state", err)
	}
	return value, nil
}
