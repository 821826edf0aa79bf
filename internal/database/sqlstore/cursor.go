package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// GetCursor returns the stored cursor for service; ok is false when none
// has been stored yet.
func (s *Store) GetCursor(ctx context.Context, service string) (int64, bool, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT cursor FROM sub_state WHERE service = ?`), service).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	return cursor, true, nil
}

// UpdateCursor stores the cursor for service, replacing any previous value.
func (s *Store) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sub_state (service, cursor) VALUES (?, ?)
		ON CONFLICT (service) DO UPDATE SET cursor = excluded.cursor
	`), service, cursor)
	if err != nil {
		return fmt.Errorf("update cursor: %w", err)
	}
	return nil
}
