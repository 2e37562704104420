// Package analytics computes spending aggregates over the current
// subscription snapshot. Every operation is a pure function of the snapshot;
// nothing here mutates state or persists results.
//
// Totals are grouped strictly per currency code and never merged or
// converted. Monthly equivalents use the fixed weekly constant from the
// billing package, so smoothed totals are estimates rather than calendar
// accounting.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subtrack-app/subtrack/internal/billing"
	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
)

var twelve = decimal.NewFromInt(12)

type Storage interface {
	ListSubscriptions(ctx context.Context, filter domain.ListFilter) ([]domain.Subscription, error)
}

type Engine struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

func New(storage Storage, logger *slog.Logger) *Engine {
	return &Engine{
		storage: storage,
		logger:  logger.WithGroup("analytics"),
		now:     time.Now,
	}
}

// MonthlyTotal sums the monthly equivalent of every active subscription per
// currency, rounded to two decimals (half-up).
func (e *Engine) MonthlyTotal(ctx context.Context) (map[string]decimal.Decimal, error) {
	subs, err := e.activeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return monthlyTotals(subs), nil
}

// YearlyTotal is the rounded monthly total times twelve, re-rounded, so the
// two reports never drift apart.
func (e *Engine) YearlyTotal(ctx context.Context) (map[string]decimal.Decimal, error) {
	monthly, err := e.MonthlyTotal(ctx)
	if err != nil {
		return nil, err
	}

	yearly := make(map[string]decimal.Decimal, len(monthly))
	for currency, total := range monthly {
		yearly[currency] = total.Mul(twelve).Round(2)
	}
	return yearly, nil
}

// WeeklyTotal divides the monthly total by the weekly constant; the same
// approximation error as the weekly-to-monthly conversion, accepted as-is.
func (e *Engine) WeeklyTotal(ctx context.Context) (map[string]decimal.Decimal, error) {
	monthly, err := e.MonthlyTotal(ctx)
	if err != nil {
		return nil, err
	}

	weekly := make(map[string]decimal.Decimal, len(monthly))
	for currency, total := range monthly {
		weekly[currency] = total.Div(billing.WeeksPerMonth).Round(2)
	}
	return weekly, nil
}

// MonthSpend is the raw amount actually charged inside one calendar month,
// with the subscriptions billing in that window.
type MonthSpend struct {
	Total         decimal.Decimal
	Subscriptions []domain.Subscription
}

// ActualSpendForMonth sums the raw (not smoothed) amounts of active
// subscriptions whose billing date falls inside the given calendar month,
// per currency. Zero year/month defaults to the current month. This answers
// "what will actually be charged", as opposed to MonthlyTotal's estimate.
func (e *Engine) ActualSpendForMonth(ctx context.Context, year int, month time.Month) (map[string]MonthSpend, error) {
	subs, err := e.activeSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	if year == 0 || month == 0 {
		now := billing.DateOnly(e.now())
		year, month = now.Year(), now.Month()
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)

	spend := make(map[string]MonthSpend)
	for _, sub := range subs {
		d := billing.DateOnly(sub.NextBillingDate)
		if d.Before(first) || !d.Before(next) {
			continue
		}
		entry := spend[sub.Currency]
		entry.Total = entry.Total.Add(sub.Amount)
		entry.Subscriptions = append(entry.Subscriptions, sub)
		spend[sub.Currency] = entry
	}

	for currency, entry := range spend {
		entry.Total = entry.Total.Round(2)
		spend[currency] = entry
	}

	return spend, nil
}

// CategorySpend aggregates one (category, currency) pair.
type CategorySpend struct {
	CategoryID      string
	Currency        string
	MonthlyEquivSum decimal.Decimal
	Count           int
}

// SpendByCategory groups active subscriptions by (category, currency),
// preserving first-seen order of the snapshot.
func (e *Engine) SpendByCategory(ctx context.Context) ([]CategorySpend, error) {
	subs, err := e.activeSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ categoryID, currency string }
	index := make(map[key]int)
	var groups []CategorySpend

	for _, sub := range subs {
		k := key{sub.CategoryID, sub.Currency}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, CategorySpend{CategoryID: sub.CategoryID, Currency: sub.Currency})
		}
		groups[i].MonthlyEquivSum = groups[i].MonthlyEquivSum.Add(billing.MonthlyEquivalent(sub.Amount, sub.Cycle))
		groups[i].Count++
	}

	for i := range groups {
		groups[i].MonthlyEquivSum = groups[i].MonthlyEquivSum.Round(2)
	}

	return groups, nil
}

type Stats struct {
	ActiveCount   int
	InactiveCount int
	// MostExpensive and Cheapest rank active subscriptions by monthly
	// equivalent; both nil without active subscriptions, both the same record
	// when there is exactly one.
	MostExpensive        *domain.Subscription
	Cheapest             *domain.Subscription
	AvgMonthlyByCurrency map[string]decimal.Decimal
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	all, err := e.storage.ListSubscriptions(ctx, domain.ListFilter{})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to load subscriptions for stats", slog.Any("error", err))
		return Stats{}, err
	}

	var active []domain.Subscription
	stats := Stats{AvgMonthlyByCurrency: make(map[string]decimal.Decimal)}
	for _, sub := range all {
		if sub.IsActive {
			active = append(active, sub)
		} else {
			stats.InactiveCount++
		}
	}
	stats.ActiveCount = len(active)

	if len(active) == 0 {
		return stats, nil
	}

	ranked := make([]domain.Subscription, len(active))
	copy(ranked, active)
	sort.SliceStable(ranked, func(i, j int) bool {
		mi := billing.MonthlyEquivalent(ranked[i].Amount, ranked[i].Cycle)
		mj := billing.MonthlyEquivalent(ranked[j].Amount, ranked[j].Cycle)
		return mi.GreaterThan(mj)
	})
	stats.MostExpensive = &ranked[0]
	stats.Cheapest = &ranked[len(ranked)-1]

	totals := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, sub := range active {
		totals[sub.Currency] = totals[sub.Currency].Add(billing.MonthlyEquivalent(sub.Amount, sub.Cycle))
		counts[sub.Currency]++
	}
	for currency, total := range totals {
		stats.AvgMonthlyByCurrency[currency] = total.Div(decimal.NewFromInt(int64(counts[currency]))).Round(2)
	}

	return stats, nil
}

// Upcoming buckets active subscriptions by urgency. Bucket membership is the
// whole-day difference between the billing date and today: <0 overdue,
// 0 today, 1 tomorrow, 2..7 this week, 8..14 next week, >14 later. Each
// bucket keeps the ascending billing-date order of the snapshot.
type Upcoming struct {
	Overdue  []domain.Subscription
	Today    []domain.Subscription
	Tomorrow []domain.Subscription
	ThisWeek []domain.Subscription
	NextWeek []domain.Subscription
	Later    []domain.Subscription
}

func (e *Engine) UpcomingGrouped(ctx context.Context) (Upcoming, error) {
	subs, err := e.activeSnapshot(ctx)
	if err != nil {
		return Upcoming{}, err
	}

	today := billing.DateOnly(e.now())

	var upcoming Upcoming
	for _, sub := range subs {
		diff := billing.DaysBetween(today, sub.NextBillingDate)
		switch {
		case diff < 0:
			upcoming.Overdue = append(upcoming.Overdue, sub)
		case diff == 0:
			upcoming.Today = append(upcoming.Today, sub)
		case diff == 1:
			upcoming.Tomorrow = append(upcoming.Tomorrow, sub)
		case diff <= 7:
			upcoming.ThisWeek = append(upcoming.ThisWeek, sub)
		case diff <= 14:
			upcoming.NextWeek = append(upcoming.NextWeek, sub)
		default:
			upcoming.Later = append(upcoming.Later, sub)
		}
	}

	return upcoming, nil
}

// activeSnapshot reads active subscriptions ordered by billing date
// ascending; the storage layer guarantees the ordering.
func (e *Engine) activeSnapshot(ctx context.Context) ([]domain.Subscription, error) {
	active := true
	subs, err := e.storage.ListSubscriptions(ctx, domain.ListFilter{Active: &active})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to load active subscriptions", slog.Any("error", err))
		return nil, err
	}
	return subs, nil
}

func monthlyTotals(subs []domain.Subscription) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, sub := range subs {
		totals[sub.Currency] = totals[sub.Currency].Add(billing.MonthlyEquivalent(sub.Amount, sub.Cycle))
	}
	for currency, total := range totals {
		totals[currency] = total.Round(2)
	}
	return totals
}
