package reminder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
)

type scheduledCall struct {
	at            time.Time
	title         string
	body          string
	correlationID string
}

type fakeScheduler struct {
	calls     []scheduledCall
	cancelled []string
	failNext  int // fail this many ScheduleAt calls before succeeding
	cancelErr error
	seq       int
}

func (f *fakeScheduler) ScheduleAt(_ context.Context, at time.Time, title, body, correlationID string) (string, error) {
	if f.failNext > 0 {
		f.failNext--
		return "", errors.New("broker unavailable")
	}
	f.calls = append(f.calls, scheduledCall{at: at, title: title, body: body, correlationID: correlationID})
	f.seq++
	return fmt.Sprintf("handle-%d", f.seq), nil
}

func (f *fakeScheduler) Cancel(_ context.Context, handle string) error {
	f.cancelled = append(f.cancelled, handle)
	return f.cancelErr
}

func testAdapter(s Scheduler, now time.Time) *Adapter {
	a := NewAdapter(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return now }
	return a
}

func testSubscription(billingDate time.Time, offsets []int) domain.Subscription {
	return domain.Subscription{
		ID:              uuid.New(),
		Name:            "Netflix",
		Amount:          decimal.RequireFromString("9.99"),
		Currency:        "USD",
		Cycle:           domain.CycleMonthly,
		NextBillingDate: billingDate,
		ReminderDays:    offsets,
	}
}

func TestScheduleSkipsPastOffsets(t *testing.T) {
	// billing date two days out: only the 1-day-before trigger is still ahead
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	billingDate := time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)

	fake := &fakeScheduler{}
	adapter := testAdapter(fake, now)

	handles := adapter.Schedule(context.Background(), testSubscription(billingDate, []int{7, 3, 1}))

	require.Len(t, handles, 1)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC), fake.calls[0].at)
	assert.Equal(t, "Netflix renews tomorrow", fake.calls[0].title)
	assert.Equal(t, "9.99 USD due on 2025-03-12", fake.calls[0].body)
}

func TestScheduleReturnsHandlesInOffsetOrder(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	billingDate := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)

	fake := &fakeScheduler{}
	adapter := testAdapter(fake, now)

	handles := adapter.Schedule(context.Background(), testSubscription(billingDate, []int{7, 3, 1}))

	require.Equal(t, []string{"handle-1", "handle-2", "handle-3"}, handles)
	require.Len(t, fake.calls, 3)
	assert.Equal(t, time.Date(2025, time.March, 13, 0, 0, 0, 0, time.UTC), fake.calls[0].at)
	assert.Equal(t, time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC), fake.calls[1].at)
	assert.Equal(t, time.Date(2025, time.March, 19, 0, 0, 0, 0, time.UTC), fake.calls[2].at)
}

func TestScheduleIsolatesPerOffsetFailures(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	billingDate := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)

	fake := &fakeScheduler{failNext: 1}
	adapter := testAdapter(fake, now)

	handles := adapter.Schedule(context.Background(), testSubscription(billingDate, []int{7, 3}))

	// first offset failed, second still went through
	require.Len(t, handles, 1)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC), fake.calls[0].at)
}

func TestScheduleWithNopScheduler(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	billingDate := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)

	adapter := testAdapter(NopScheduler{}, now)

	handles := adapter.Schedule(context.Background(), testSubscription(billingDate, []int{7, 3, 1}))
	assert.Empty(t, handles)
}

func TestScheduleNoOffsets(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeScheduler{}
	adapter := testAdapter(fake, now)

	assert.Nil(t, adapter.Schedule(context.Background(), testSubscription(now.AddDate(0, 1, 0), nil)))
	assert.Empty(t, fake.calls)
}

func TestCancelAllBestEffort(t *testing.T) {
	fake := &fakeScheduler{cancelErr: errors.New("gone")}
	adapter := testAdapter(fake, time.Now())

	adapter.CancelAll(context.Background(), []string{"a", "b"})

	// every handle attempted despite errors
	assert.Equal(t, []string{"a", "b"}, fake.cancelled)
}

func TestContentZeroOffset(t *testing.T) {
	sub := testSubscription(time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC), []int{0})
	title, _ := content(sub, 0)
	assert.Equal(t, "Netflix renews today", title)
}
