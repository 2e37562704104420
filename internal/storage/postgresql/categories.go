package postgresql

import (
	"context"
	"fmt"

	"github.com/subtrack-app/subtrack/internal/domain/category"
)

func (s *Storage) ListCategories(ctx context.Context) ([]category.Category, error) {
	const op = "storage.postgresql.ListCategories"

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, icon, color FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []category.Category
	for rows.Next() {
		var c category.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (s *Storage) CategoryExists(ctx context.Context, id string) (bool, error) {
	const op = "storage.postgresql.CategoryExists"

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// SeedCategories inserts the default category set, leaving existing rows
// untouched. Categories are never deleted by this service.
func (s *Storage) SeedCategories(ctx context.Context, categories []category.Category) error {
	const op = "storage.postgresql.SeedCategories"

	const query = `INSERT INTO categories (id, name, icon, color)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

	for _, c := range categories {
		if _, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.Icon, c.Color); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}
