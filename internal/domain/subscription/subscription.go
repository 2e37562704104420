package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("subscription not found")

// ValidationError reports a rejected input field. Operations fail with it
// before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DateLayout is the wire format for billing dates. Dates carry no time
// component and are stored and compared in UTC.
const DateLayout = "2006-01-02"

type Cycle string

const (
	CycleWeekly    Cycle = "weekly"
	CycleMonthly   Cycle = "monthly"
	CycleQuarterly Cycle = "quarterly"
	CycleYearly    Cycle = "yearly"
)

func ParseCycle(s string) (Cycle, error) {
	c := Cycle(s)
	if !c.Valid() {
		return "", NewValidationError("billing_cycle", "must be one of weekly, monthly, quarterly, yearly")
	}
	return c, nil
}

func (c Cycle) Valid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

func (c Cycle) String() string {
	return string(c)
}

type Subscription struct {
	ID              uuid.UUID
	Name            string
	Amount          decimal.Decimal
	Currency        string
	Cycle           Cycle
	NextBillingDate time.Time
	StartDate       time.Time
	CategoryID      string
	Notes           *string
	IsActive        bool
	ReminderDays    []int
	NotificationIDs []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateInput struct {
	Name        string
	Amount      decimal.Decimal
	Currency    string // empty: default currency from settings
	Cycle       Cycle
	BillingDate time.Time
	StartDate   time.Time // zero: same as BillingDate
	CategoryID  string    // empty: "other"
	Notes       *string
	IsActive    bool
	// ReminderDays nil means "use the configured defaults"; an empty
	// non-nil slice means "no reminders".
	ReminderDays []int
}

// UpdateInput is a partial update: nil fields are left unchanged. Clearing
// notes is expressed with ClearNotes so a nil Notes stays unambiguous.
type UpdateInput struct {
	Name         *string
	Amount       *decimal.Decimal
	Currency     *string
	Cycle        *Cycle
	BillingDate  *time.Time
	CategoryID   *string
	Notes        *string
	ClearNotes   bool
	IsActive     *bool
	ReminderDays *[]int
}

type ListFilter struct {
	Active     *bool
	CategoryID *string
	// DueBy keeps only subscriptions billing on or before the given date.
	DueBy  *time.Time
	Limit  int
	Offset int
}
