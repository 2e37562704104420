package subscriptions

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/subtrack-app/subtrack/internal/billing"
	"github.com/subtrack-app/subtrack/internal/domain/category"
	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
)

// Settings keys read for creation defaults and the global reminder switch.
const (
	SettingDefaultCurrency     = "default_currency"
	SettingDefaultReminderDays = "default_reminder_days"
	SettingNotificationsFlag   = "notifications_enabled"
)

var (
	fallbackCurrency     = "USD"
	fallbackReminderDays = []int{7, 3, 1}
)

type Storage interface {
	CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	SetNotificationIDs(ctx context.Context, id uuid.UUID, handles []string) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	ListSubscriptions(ctx context.Context, filter domain.ListFilter) ([]domain.Subscription, error)
	CategoryExists(ctx context.Context, id string) (bool, error)
	GetSetting(ctx context.Context, key string) (string, error)
}

// Reminders is the scheduling adapter boundary. Schedule never fails hard: a
// reminder that could not be placed is simply absent from the handle list.
type Reminders interface {
	Schedule(ctx context.Context, sub domain.Subscription) []string
	CancelAll(ctx context.Context, handles []string)
}

type Service struct {
	storage   Storage
	reminders Reminders
	logger    *slog.Logger
	now       func() time.Time
}

func New(storage Storage, reminders Reminders, logger *slog.Logger) *Service {
	return &Service{
		storage:   storage,
		reminders: reminders,
		logger:    logger.WithGroup("subscriptions_service"),
		now:       time.Now,
	}
}

// Create validates the input, normalizes the billing date into the future and
// persists the record, then schedules reminders for it if it is active. The
// stored billing date is never in the past.
func (s *Service) Create(ctx context.Context, input domain.CreateInput) (domain.Subscription, error) {
	if err := validateCreate(input); err != nil {
		return domain.Subscription{}, err
	}

	if input.CategoryID == "" {
		input.CategoryID = category.DefaultID
	}
	exists, err := s.storage.CategoryExists(ctx, input.CategoryID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to check category", slog.String("category_id", input.CategoryID), slog.Any("error", err))
		return domain.Subscription{}, err
	}
	if !exists {
		return domain.Subscription{}, category.ErrNotFound
	}

	if input.Currency == "" {
		input.Currency = s.defaultCurrency(ctx)
	}
	if input.ReminderDays == nil {
		input.ReminderDays = s.defaultReminderDays(ctx)
	}

	now := s.now()
	billingDate := billing.AdvanceToFuture(input.BillingDate, input.Cycle, now)

	startDate := billing.DateOnly(input.BillingDate)
	if !input.StartDate.IsZero() {
		startDate = billing.DateOnly(input.StartDate)
	}

	sub := domain.Subscription{
		Name:            strings.TrimSpace(input.Name),
		Amount:          input.Amount,
		Currency:        input.Currency,
		Cycle:           input.Cycle,
		NextBillingDate: billingDate,
		StartDate:       startDate,
		CategoryID:      input.CategoryID,
		Notes:           input.Notes,
		IsActive:        input.IsActive,
		ReminderDays:    input.ReminderDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.logger.InfoContext(ctx, "creating subscription", slog.String("name", sub.Name), slog.String("currency", sub.Currency))

	created, err := s.storage.CreateSubscription(ctx, sub)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create subscription", slog.Any("error", err))
		return domain.Subscription{}, err
	}

	return s.reschedule(ctx, created)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	sub, err := s.storage.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "subscription not found", slog.String("subscription_id", id.String()))
		} else {
			s.logger.ErrorContext(ctx, "failed to get subscription", slog.String("subscription_id", id.String()), slog.Any("error", err))
		}
		return domain.Subscription{}, err
	}

	return sub, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Subscription, error) {
	subs, err := s.storage.ListSubscriptions(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list subscriptions", slog.Any("error", err))
		return nil, err
	}

	return subs, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	active := true
	return s.List(ctx, domain.ListFilter{Active: &active})
}

// ListDueBy returns active subscriptions billing within the next `days` days,
// ordered by billing date ascending.
func (s *Service) ListDueBy(ctx context.Context, days int) ([]domain.Subscription, error) {
	active := true
	dueBy := billing.DateOnly(s.now()).AddDate(0, 0, days)
	return s.List(ctx, domain.ListFilter{Active: &active, DueBy: &dueBy})
}

// Update applies the provided fields. Existing reminder handles are cancelled
// unconditionally before persisting; the record is rescheduled afterwards if
// it is still active, so handles and billing date cannot drift apart.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input domain.UpdateInput) (domain.Subscription, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}

	updated, err := s.applyUpdate(ctx, existing, input)
	if err != nil {
		return domain.Subscription{}, err
	}

	s.logger.InfoContext(ctx, "updating subscription", slog.String("subscription_id", id.String()))

	s.reminders.CancelAll(ctx, existing.NotificationIDs)

	now := s.now()
	updated.NextBillingDate = billing.AdvanceToFuture(updated.NextBillingDate, updated.Cycle, now)
	updated.NotificationIDs = nil
	updated.UpdatedAt = now

	persisted, err := s.storage.UpdateSubscription(ctx, updated)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update subscription", slog.String("subscription_id", id.String()), slog.Any("error", err))
		return domain.Subscription{}, err
	}

	return s.reschedule(ctx, persisted)
}

// Delete cancels outstanding reminders and removes the record. Deleting an
// absent id is a no-op, not an error.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.storage.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.DebugContext(ctx, "delete of missing subscription ignored", slog.String("subscription_id", id.String()))
			return nil
		}
		return err
	}

	s.logger.InfoContext(ctx, "deleting subscription", slog.String("subscription_id", id.String()))

	s.reminders.CancelAll(ctx, existing.NotificationIDs)

	if err := s.storage.DeleteSubscription(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		s.logger.ErrorContext(ctx, "failed to delete subscription", slog.String("subscription_id", id.String()), slog.Any("error", err))
		return err
	}

	return nil
}

// MarkPaid advances the billing date by exactly one cycle and swaps the
// reminder handle set. Deliberately NOT re-normalized to today: paying a
// subscription that was more than one cycle overdue leaves it overdue, which
// callers should surface as an immediately due bill.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}

	s.logger.InfoContext(ctx, "marking subscription paid", slog.String("subscription_id", id.String()))

	s.reminders.CancelAll(ctx, existing.NotificationIDs)

	existing.NextBillingDate = billing.NextOccurrence(existing.NextBillingDate, existing.Cycle)
	existing.NotificationIDs = nil
	existing.UpdatedAt = s.now()

	persisted, err := s.storage.UpdateSubscription(ctx, existing)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark subscription paid", slog.String("subscription_id", id.String()), slog.Any("error", err))
		return domain.Subscription{}, err
	}

	return s.reschedule(ctx, persisted)
}

// ToggleActive flips the active flag. Deactivating cancels and clears all
// handles; reactivating schedules a fresh set.
func (s *Service) ToggleActive(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return domain.Subscription{}, err
	}

	s.logger.InfoContext(ctx, "toggling subscription",
		slog.String("subscription_id", id.String()),
		slog.Bool("was_active", existing.IsActive))

	s.reminders.CancelAll(ctx, existing.NotificationIDs)

	existing.IsActive = !existing.IsActive
	existing.NotificationIDs = nil
	existing.UpdatedAt = s.now()

	persisted, err := s.storage.UpdateSubscription(ctx, existing)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to toggle subscription", slog.String("subscription_id", id.String()), slog.Any("error", err))
		return domain.Subscription{}, err
	}

	return s.reschedule(ctx, persisted)
}

// reschedule stores a fresh handle set for an active subscription. Callers
// must already have cancelled the previous set.
func (s *Service) reschedule(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	if !sub.IsActive || !s.schedulingEnabled(ctx) {
		return sub, nil
	}

	handles := s.reminders.Schedule(ctx, sub)
	if len(handles) == 0 {
		return sub, nil
	}

	if err := s.storage.SetNotificationIDs(ctx, sub.ID, handles); err != nil {
		s.logger.ErrorContext(ctx, "failed to store notification handles", slog.String("subscription_id", sub.ID.String()), slog.Any("error", err))
		return domain.Subscription{}, err
	}

	sub.NotificationIDs = handles
	return sub, nil
}

func (s *Service) schedulingEnabled(ctx context.Context) bool {
	value, err := s.storage.GetSetting(ctx, SettingNotificationsFlag)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read notifications setting", slog.Any("error", err))
		return true
	}
	return value != "false"
}

func (s *Service) defaultCurrency(ctx context.Context) string {
	value, err := s.storage.GetSetting(ctx, SettingDefaultCurrency)
	if err != nil || value == "" {
		return fallbackCurrency
	}
	return value
}

func (s *Service) defaultReminderDays(ctx context.Context) []int {
	value, err := s.storage.GetSetting(ctx, SettingDefaultReminderDays)
	if err != nil || value == "" {
		return fallbackReminderDays
	}

	var days []int
	for _, part := range strings.Split(value, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || day < 0 {
			s.logger.WarnContext(ctx, "ignoring malformed default_reminder_days setting", slog.String("value", value))
			return fallbackReminderDays
		}
		days = append(days, day)
	}

	return days
}

func validateCreate(input domain.CreateInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return domain.NewValidationError("name", "must not be empty")
	}
	if !input.Amount.IsPositive() {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	if !input.Cycle.Valid() {
		return domain.NewValidationError("billing_cycle", "must be one of weekly, monthly, quarterly, yearly")
	}
	if input.BillingDate.IsZero() {
		return domain.NewValidationError("next_billing_date", "is required")
	}
	return validateReminderDays(input.ReminderDays)
}

func validateReminderDays(days []int) error {
	for _, day := range days {
		if day < 0 {
			return domain.NewValidationError("reminder_days", "offsets must not be negative")
		}
	}
	return nil
}

func (s *Service) applyUpdate(ctx context.Context, sub domain.Subscription, input domain.UpdateInput) (domain.Subscription, error) {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return domain.Subscription{}, domain.NewValidationError("name", "must not be empty")
		}
		sub.Name = name
	}
	if input.Amount != nil {
		if !input.Amount.IsPositive() {
			return domain.Subscription{}, domain.NewValidationError("amount", "must be greater than zero")
		}
		sub.Amount = *input.Amount
	}
	if input.Currency != nil {
		if *input.Currency == "" {
			return domain.Subscription{}, domain.NewValidationError("currency", "must not be empty")
		}
		sub.Currency = *input.Currency
	}
	if input.Cycle != nil {
		if !input.Cycle.Valid() {
			return domain.Subscription{}, domain.NewValidationError("billing_cycle", "must be one of weekly, monthly, quarterly, yearly")
		}
		sub.Cycle = *input.Cycle
	}
	if input.BillingDate != nil {
		sub.NextBillingDate = billing.DateOnly(*input.BillingDate)
	}
	if input.CategoryID != nil {
		exists, err := s.storage.CategoryExists(ctx, *input.CategoryID)
		if err != nil {
			return domain.Subscription{}, err
		}
		if !exists {
			return domain.Subscription{}, category.ErrNotFound
		}
		sub.CategoryID = *input.CategoryID
	}
	if input.ClearNotes {
		sub.Notes = nil
	} else if input.Notes != nil {
		sub.Notes = input.Notes
	}
	if input.IsActive != nil {
		sub.IsActive = *input.IsActive
	}
	if input.ReminderDays != nil {
		if err := validateReminderDays(*input.ReminderDays); err != nil {
			return domain.Subscription{}, err
		}
		sub.ReminderDays = *input.ReminderDays
	}

	return sub, nil
}
