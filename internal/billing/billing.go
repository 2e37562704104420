// Package billing holds the pure date and amount arithmetic behind recurring
// charges: advancing a billing date by one cycle, normalizing a date into the
// future, and converting amounts between cycles.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/subtrack-app/subtrack/internal/domain/subscription"
)

// WeeksPerMonth is the fixed weekly-to-monthly conversion factor. It is a
// rounded approximation of 365.25/12/7; totals derived from it are estimates,
// not calendar-exact accounting. The inverse is used for weekly totals, so the
// same approximation error applies in both directions.
var WeeksPerMonth = decimal.NewFromFloat(4.33)

var (
	three  = decimal.NewFromInt(3)
	twelve = decimal.NewFromInt(12)
)

// DateOnly truncates t to midnight UTC. All billing dates are compared as
// UTC calendar days.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextOccurrence returns the billing date one cycle after d. Month-based
// cycles clamp the day-of-month to the last day of a shorter target month
// (Jan 31 + monthly = Feb 28/29, Feb 29 + yearly = Feb 28 in non-leap years).
func NextOccurrence(d time.Time, cycle domain.Cycle) time.Time {
	d = DateOnly(d)
	switch cycle {
	case domain.CycleWeekly:
		return d.AddDate(0, 0, 7)
	case domain.CycleQuarterly:
		return addMonthsClamped(d, 3)
	case domain.CycleYearly:
		return addMonthsClamped(d, 12)
	default:
		return addMonthsClamped(d, 1)
	}
}

// AdvanceToFuture applies NextOccurrence until the date is not before today.
// A date already at or past today is returned unchanged. Weekly dates far in
// the past are first jumped forward by whole weeks so the loop stays cheap
// for arbitrarily old inputs.
func AdvanceToFuture(d time.Time, cycle domain.Cycle, today time.Time) time.Time {
	d = DateOnly(d)
	today = DateOnly(today)

	if cycle == domain.CycleWeekly && d.Before(today) {
		weeks := DaysBetween(d, today) / 7
		d = d.AddDate(0, 0, weeks*7)
	}

	for d.Before(today) {
		d = NextOccurrence(d, cycle)
	}

	return d
}

// MonthlyEquivalent converts an amount billed on the given cycle into its
// per-month cost. See WeeksPerMonth for the weekly approximation.
func MonthlyEquivalent(amount decimal.Decimal, cycle domain.Cycle) decimal.Decimal {
	switch cycle {
	case domain.CycleWeekly:
		return amount.Mul(WeeksPerMonth)
	case domain.CycleQuarterly:
		return amount.Div(three)
	case domain.CycleYearly:
		return amount.Div(twelve)
	default:
		return amount
	}
}

// DaysBetween returns the whole-day difference to - from, negative when to is
// earlier.
func DaysBetween(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)).Hours() / 24)
}

// addMonthsClamped advances by whole calendar months keeping the day-of-month,
// clamped to the target month's length. time.AddDate is unsuitable here: it
// normalizes Jan 31 + 1 month into Mar 2/3 instead of clamping to Feb.
func addMonthsClamped(d time.Time, months int) time.Time {
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)

	day := d.Day()
	if last := lastDayOfMonth(first.Year(), first.Month()); day > last {
		day = last
	}

	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
