// Package reminder translates a subscription's reminder offsets into future
// trigger instants for an external one-shot notification scheduler. The
// scheduler is a collaborator: it takes a fire time and content, returns an
// opaque handle, and can later be asked to cancel that handle.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/subtrack-app/subtrack/internal/billing"
	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
)

// ErrSchedulingUnavailable is returned by NopScheduler and by transports that
// are down. It degrades a reminder to "not scheduled"; it is never fatal.
var ErrSchedulingUnavailable = errors.New("notification scheduling unavailable")

// Scheduler is the external notification collaborator. Both calls may fail
// individually without aborting a batch.
type Scheduler interface {
	ScheduleAt(ctx context.Context, at time.Time, title, body, correlationID string) (string, error)
	Cancel(ctx context.Context, handle string) error
}

// NopScheduler stands in when notifications are disabled or no transport is
// configured. It schedules nothing and cancels nothing.
type NopScheduler struct{}

func (NopScheduler) ScheduleAt(context.Context, time.Time, string, string, string) (string, error) {
	return "", ErrSchedulingUnavailable
}

func (NopScheduler) Cancel(context.Context, string) error { return nil }

var (
	remindersScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subtrack_reminders_scheduled_total",
		Help: "Reminder notifications handed to the external scheduler.",
	})
	reminderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subtrack_reminder_schedule_failures_total",
		Help: "Per-offset scheduling attempts that failed and were skipped.",
	})
)

// Adapter plans trigger instants and shields callers from scheduler failures.
type Adapter struct {
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewAdapter(scheduler Scheduler, logger *slog.Logger) *Adapter {
	return &Adapter{
		scheduler: scheduler,
		logger:    logger.WithGroup("reminder_adapter"),
		now:       time.Now,
	}
}

// Schedule requests one notification per reminder offset whose trigger
// instant is still in the future. Offsets whose trigger has passed are
// silently skipped, and a failure on one offset never aborts the rest, so the
// returned handles may be fewer than the offsets. Handle order follows offset
// order.
func (a *Adapter) Schedule(ctx context.Context, sub domain.Subscription) []string {
	if len(sub.ReminderDays) == 0 {
		return nil
	}

	now := a.now()
	billingDate := billing.DateOnly(sub.NextBillingDate)

	var handles []string
	for _, offset := range sub.ReminderDays {
		trigger := billingDate.AddDate(0, 0, -offset)
		if !trigger.After(now) {
			continue
		}

		title, body := content(sub, offset)
		handle, err := a.scheduler.ScheduleAt(ctx, trigger, title, body, sub.ID.String())
		if err != nil {
			if errors.Is(err, ErrSchedulingUnavailable) {
				a.logger.DebugContext(ctx, "reminder scheduling unavailable", slog.String("subscription_id", sub.ID.String()))
			} else {
				reminderFailures.Inc()
				a.logger.WarnContext(ctx, "failed to schedule reminder",
					slog.String("subscription_id", sub.ID.String()),
					slog.Int("offset_days", offset),
					slog.Any("error", err))
			}
			continue
		}

		remindersScheduled.Inc()
		handles = append(handles, handle)
	}

	return handles
}

// CancelAll cancels every handle best-effort. A handle the external layer no
// longer knows about is not an error.
func (a *Adapter) CancelAll(ctx context.Context, handles []string) {
	for _, handle := range handles {
		if err := a.scheduler.Cancel(ctx, handle); err != nil {
			a.logger.DebugContext(ctx, "failed to cancel reminder", slog.String("handle", handle), slog.Any("error", err))
		}
	}
}

func content(sub domain.Subscription, offset int) (title, body string) {
	switch offset {
	case 0:
		title = fmt.Sprintf("%s renews today", sub.Name)
	case 1:
		title = fmt.Sprintf("%s renews tomorrow", sub.Name)
	default:
		title = fmt.Sprintf("%s renews in %d days", sub.Name, offset)
	}

	body = fmt.Sprintf("%s %s due on %s",
		sub.Amount.StringFixed(2),
		sub.Currency,
		billing.DateOnly(sub.NextBillingDate).Format(domain.DateLayout))

	return title, body
}
