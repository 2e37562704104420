package analytics

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
)

type storageStub struct {
	subs []domain.Subscription
}

func (s *storageStub) ListSubscriptions(_ context.Context, filter domain.ListFilter) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for _, sub := range s.subs {
		if filter.Active != nil && sub.IsActive != *filter.Active {
			continue
		}
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextBillingDate.Before(out[j].NextBillingDate)
	})
	return out, nil
}

var testNow = time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

func newTestEngine(subs ...domain.Subscription) *Engine {
	e := New(&storageStub{subs: subs}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return testNow }
	return e
}

func sub(name, amount, currency string, cycle domain.Cycle, billingDate time.Time) domain.Subscription {
	return domain.Subscription{
		ID:              uuid.New(),
		Name:            name,
		Amount:          decimal.RequireFromString(amount),
		Currency:        currency,
		Cycle:           cycle,
		NextBillingDate: billingDate,
		CategoryID:      "other",
		IsActive:        true,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestMonthlyTotalGroupsByCurrency(t *testing.T) {
	engine := newTestEngine(
		sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.April, 1)),
		sub("Coffee club", "10", "USD", domain.CycleWeekly, date(2025, time.March, 12)),
		sub("Hosting", "120", "EUR", domain.CycleYearly, date(2025, time.December, 1)),
	)

	totals, err := engine.MonthlyTotal(context.Background())
	require.NoError(t, err)

	// currencies never merged
	require.Len(t, totals, 2)
	assertAmount(t, "53.29", totals["USD"]) // 9.99 + 10*4.33
	assertAmount(t, "10", totals["EUR"])    // 120/12
}

func TestMonthlyTotalSkipsInactive(t *testing.T) {
	inactive := sub("Gym", "30", "USD", domain.CycleMonthly, date(2025, time.April, 1))
	inactive.IsActive = false

	engine := newTestEngine(
		inactive,
		sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.April, 1)),
	)

	totals, err := engine.MonthlyTotal(context.Background())
	require.NoError(t, err)
	assertAmount(t, "9.99", totals["USD"])
}

func TestYearlyTotalMatchesMonthlyTimesTwelve(t *testing.T) {
	engine := newTestEngine(
		sub("Coffee club", "10", "USD", domain.CycleWeekly, date(2025, time.March, 12)),
		sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.April, 1)),
		sub("Box", "7.77", "EUR", domain.CycleQuarterly, date(2025, time.May, 2)),
	)

	monthly, err := engine.MonthlyTotal(context.Background())
	require.NoError(t, err)
	yearly, err := engine.YearlyTotal(context.Background())
	require.NoError(t, err)

	for currency, m := range monthly {
		assert.True(t, m.Mul(decimal.NewFromInt(12)).Round(2).Equal(yearly[currency]),
			"yearly[%s] must equal round(monthly*12, 2)", currency)
	}
}

func TestWeeklyTotalIsMonthlyDividedByConstant(t *testing.T) {
	engine := newTestEngine(
		sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.April, 1)),
	)

	weekly, err := engine.WeeklyTotal(context.Background())
	require.NoError(t, err)
	assertAmount(t, "2.31", weekly["USD"]) // 9.99 / 4.33
}

func TestActualSpendForMonth(t *testing.T) {
	engine := newTestEngine(
		sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.March, 15)),
		sub("Hosting", "120", "USD", domain.CycleYearly, date(2025, time.March, 31)),
		sub("Next month", "5", "USD", domain.CycleMonthly, date(2025, time.April, 1)),
		sub("Box", "7.77", "EUR", domain.CycleQuarterly, date(2025, time.March, 1)),
	)

	spend, err := engine.ActualSpendForMonth(context.Background(), 2025, time.March)
	require.NoError(t, err)

	require.Len(t, spend, 2)
	// raw amounts, not monthly equivalents
	assertAmount(t, "129.99", spend["USD"].Total)
	require.Len(t, spend["USD"].Subscriptions, 2)
	assertAmount(t, "7.77", spend["EUR"].Total)
}

func TestActualSpendDefaultsToCurrentMonth(t *testing.T) {
	engine := newTestEngine(
		sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.March, 15)),
		sub("Later", "5", "USD", domain.CycleMonthly, date(2025, time.April, 2)),
	)

	spend, err := engine.ActualSpendForMonth(context.Background(), 0, 0)
	require.NoError(t, err)
	assertAmount(t, "9.99", spend["USD"].Total)
}

func TestSpendByCategory(t *testing.T) {
	streaming := sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.March, 15))
	streaming.CategoryID = "streaming"
	streaming2 := sub("Hulu", "7.99", "USD", domain.CycleMonthly, date(2025, time.March, 20))
	streaming2.CategoryID = "streaming"
	music := sub("Spotify", "120", "USD", domain.CycleYearly, date(2025, time.June, 1))
	music.CategoryID = "music"

	engine := newTestEngine(streaming, streaming2, music)

	groups, err := engine.SpendByCategory(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "streaming", groups[0].CategoryID)
	assert.Equal(t, 2, groups[0].Count)
	assertAmount(t, "17.98", groups[0].MonthlyEquivSum)

	assert.Equal(t, "music", groups[1].CategoryID)
	assert.Equal(t, 1, groups[1].Count)
	assertAmount(t, "10", groups[1].MonthlyEquivSum)
}

func TestStatsEmpty(t *testing.T) {
	engine := newTestEngine()

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveCount)
	assert.Nil(t, stats.MostExpensive)
	assert.Nil(t, stats.Cheapest)
}

func TestStatsSingleActive(t *testing.T) {
	only := sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.April, 1))
	engine := newTestEngine(only)

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats.MostExpensive)
	require.NotNil(t, stats.Cheapest)
	assert.Equal(t, only.ID, stats.MostExpensive.ID)
	assert.Equal(t, only.ID, stats.Cheapest.ID)
}

func TestStatsRanksByMonthlyEquivalent(t *testing.T) {
	cheapYearly := sub("Domain", "24", "USD", domain.CycleYearly, date(2025, time.July, 1)) // 2/month
	pricyWeekly := sub("Lunch box", "10", "USD", domain.CycleWeekly, date(2025, time.March, 12))
	middle := sub("Netflix", "9.99", "USD", domain.CycleMonthly, date(2025, time.April, 1))
	inactive := sub("Gym", "999", "USD", domain.CycleMonthly, date(2025, time.April, 1))
	inactive.IsActive = false

	engine := newTestEngine(cheapYearly, pricyWeekly, middle, inactive)

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ActiveCount)
	assert.Equal(t, 1, stats.InactiveCount)
	assert.Equal(t, pricyWeekly.ID, stats.MostExpensive.ID) // 43.30/month
	assert.Equal(t, cheapYearly.ID, stats.Cheapest.ID)

	// (43.30 + 9.99 + 2) / 3
	assertAmount(t, "18.43", stats.AvgMonthlyByCurrency["USD"])
}

func TestUpcomingGroupedBoundaries(t *testing.T) {
	overdue := sub("Overdue", "1", "USD", domain.CycleMonthly, date(2025, time.March, 9))
	today := sub("Today", "1", "USD", domain.CycleMonthly, date(2025, time.March, 10))
	tomorrow := sub("Tomorrow", "1", "USD", domain.CycleMonthly, date(2025, time.March, 11))
	weekEdge := sub("WeekEdge", "1", "USD", domain.CycleMonthly, date(2025, time.March, 17))         // diff 7
	nextWeek := sub("NextWeek", "1", "USD", domain.CycleMonthly, date(2025, time.March, 18))         // diff 8
	nextWeekEnd := sub("FortnightEdge", "1", "USD", domain.CycleMonthly, date(2025, time.March, 24)) // diff 14
	later := sub("Later", "1", "USD", domain.CycleMonthly, date(2025, time.March, 25))               // diff 15

	engine := newTestEngine(overdue, today, tomorrow, weekEdge, nextWeek, nextWeekEnd, later)

	got, err := engine.UpcomingGrouped(context.Background())
	require.NoError(t, err)

	require.Len(t, got.Overdue, 1)
	assert.Equal(t, overdue.ID, got.Overdue[0].ID)
	require.Len(t, got.Today, 1)
	assert.Equal(t, today.ID, got.Today[0].ID)
	require.Len(t, got.Tomorrow, 1)
	assert.Equal(t, tomorrow.ID, got.Tomorrow[0].ID)
	require.Len(t, got.ThisWeek, 1)
	assert.Equal(t, weekEdge.ID, got.ThisWeek[0].ID)
	require.Len(t, got.NextWeek, 2)
	assert.Equal(t, nextWeek.ID, got.NextWeek[0].ID)
	assert.Equal(t, nextWeekEnd.ID, got.NextWeek[1].ID)
	require.Len(t, got.Later, 1)
	assert.Equal(t, later.ID, got.Later[0].ID)
}

func TestUpcomingGroupedPreservesDateOrder(t *testing.T) {
	a := sub("A", "1", "USD", domain.CycleMonthly, date(2025, time.March, 13))
	b := sub("B", "1", "USD", domain.CycleMonthly, date(2025, time.March, 12))
	c := sub("C", "1", "USD", domain.CycleMonthly, date(2025, time.March, 14))

	engine := newTestEngine(a, b, c)

	got, err := engine.UpcomingGrouped(context.Background())
	require.NoError(t, err)
	require.Len(t, got.ThisWeek, 3)
	assert.Equal(t, b.ID, got.ThisWeek[0].ID)
	assert.Equal(t, a.ID, got.ThisWeek[1].ID)
	assert.Equal(t, c.ID, got.ThisWeek[2].ID)
}
