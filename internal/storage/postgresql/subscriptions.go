package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
)

const baseSelect = `SELECT id, name, amount, currency, billing_cycle, next_billing_date, start_date,
category_id, notes, is_active, reminder_days, notification_ids, created_at, updated_at
FROM subscriptions`

func (s *Storage) CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	const op = "storage.postgresql.CreateSubscription"

	query := `INSERT INTO subscriptions
(name, amount, currency, billing_cycle, next_billing_date, start_date, category_id, notes, is_active, reminder_days, notification_ids, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id, name, amount, currency, billing_cycle, next_billing_date, start_date,
category_id, notes, is_active, reminder_days, notification_ids, created_at, updated_at`

	row := s.db.QueryRowContext(ctx, query,
		sub.Name,
		sub.Amount,
		sub.Currency,
		sub.Cycle.String(),
		sub.NextBillingDate,
		sub.StartDate,
		sub.CategoryID,
		sqlNullString(sub.Notes),
		sub.IsActive,
		pq.Array(intsToInt64(sub.ReminderDays)),
		pq.Array(notEmpty(sub.NotificationIDs)),
		sub.CreatedAt,
		sub.UpdatedAt,
	)

	created, err := scanSubscription(row)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}

	return created, nil
}

func (s *Storage) GetSubscription(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	const op = "storage.postgresql.GetSubscription"

	row := s.db.QueryRowContext(ctx, baseSelect+" WHERE id = $1", id)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}

	return sub, nil
}

func (s *Storage) UpdateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	const op = "storage.postgresql.UpdateSubscription"

	query := `UPDATE subscriptions
SET name = $1,
    amount = $2,
    currency = $3,
    billing_cycle = $4,
    next_billing_date = $5,
    start_date = $6,
    category_id = $7,
    notes = $8,
    is_active = $9,
    reminder_days = $10,
    notification_ids = $11,
    updated_at = $12
WHERE id = $13
RETURNING id, name, amount, currency, billing_cycle, next_billing_date, start_date,
category_id, notes, is_active, reminder_days, notification_ids, created_at, updated_at`

	row := s.db.QueryRowContext(ctx, query,
		sub.Name,
		sub.Amount,
		sub.Currency,
		sub.Cycle.String(),
		sub.NextBillingDate,
		sub.StartDate,
		sub.CategoryID,
		sqlNullString(sub.Notes),
		sub.IsActive,
		pq.Array(intsToInt64(sub.ReminderDays)),
		pq.Array(notEmpty(sub.NotificationIDs)),
		sub.UpdatedAt,
		sub.ID,
	)

	updated, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}

	return updated, nil
}

func (s *Storage) SetNotificationIDs(ctx context.Context, id uuid.UUID, handles []string) error {
	const op = "storage.postgresql.SetNotificationIDs"

	res, err := s.db.ExecContext(ctx,
		"UPDATE subscriptions SET notification_ids = $1, updated_at = $2 WHERE id = $3",
		pq.Array(notEmpty(handles)), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (s *Storage) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgresql.DeleteSubscription"

	res, err := s.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (s *Storage) ListSubscriptions(ctx context.Context, filter domain.ListFilter) ([]domain.Subscription, error) {
	const op = "storage.postgresql.ListSubscriptions"

	query := baseSelect
	var conditions []string
	var args []any

	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}

	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}

	if filter.DueBy != nil {
		args = append(args, *filter.DueBy)
		conditions = append(conditions, fmt.Sprintf("next_billing_date <= $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY next_billing_date, created_at"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var (
		sub             domain.Subscription
		cycle           string
		notes           sql.NullString
		reminderDays    []int64
		notificationIDs []string
	)

	err := row.Scan(
		&sub.ID,
		&sub.Name,
		&sub.Amount,
		&sub.Currency,
		&cycle,
		&sub.NextBillingDate,
		&sub.StartDate,
		&sub.CategoryID,
		&notes,
		&sub.IsActive,
		pq.Array(&reminderDays),
		pq.Array(&notificationIDs),
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return domain.Subscription{}, err
	}

	sub.Cycle = domain.Cycle(cycle)
	sub.NextBillingDate = sub.NextBillingDate.UTC()
	sub.StartDate = sub.StartDate.UTC()
	if notes.Valid {
		sub.Notes = &notes.String
	}
	sub.ReminderDays = int64sToInts(reminderDays)
	sub.NotificationIDs = notificationIDs

	return sub, nil
}

func sqlNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// notEmpty keeps array columns NOT NULL friendly: a nil slice is stored as an
// empty array.
func notEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func intsToInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func int64sToInts(values []int64) []int {
	if len(values) == 0 {
		return nil
	}
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
