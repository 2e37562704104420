package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the stored value for key, or the empty string when the
// key is unset.
func (s *Storage) GetSetting(ctx context.Context, key string) (string, error) {
	const op = "storage.postgresql.GetSetting"

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return value, nil
}

func (s *Storage) SetSetting(ctx context.Context, key, value string) error {
	const op = "storage.postgresql.SetSetting"

	const query = `INSERT INTO settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SeedSettings fills in defaults for keys the user has not set yet.
func (s *Storage) SeedSettings(ctx context.Context, defaults map[string]string) error {
	const op = "storage.postgresql.SeedSettings"

	const query = `INSERT INTO settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO NOTHING`

	for key, value := range defaults {
		if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}
