package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/closingroom/pkg/plans"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription represents a team's plan and its current billing cycle
type Subscription struct {
	ID                 int64              `json:"id"`
	TeamID             int64              `json:"team_id"`
	Tier               plans.Tier         `json:"tier"`
	Interval           plans.Interval     `json:"interval"`
	Status             SubscriptionStatus `json:"status"`
	Anchor             time.Time          `json:"anchor"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CycleTier          plans.Tier         `json:"cycle_tier"`                 // tier whose base fee is billed for the current cycle
	PendingInterval    plans.Interval     `json:"pending_interval,omitempty"` // takes effect at the next cycle
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	CanceledAt         *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Cycle returns the subscription's current billing cycle
func (s *Subscription) Cycle() Cycle {
	return Cycle{Start: s.CurrentPeriodStart, End: s.CurrentPeriodEnd}
}

// Plan returns the catalog plan of the subscription's tier
func (s *Subscription) Plan() (plans.Plan, error) {
	return plans.Lookup(s.Tier)
}

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "open"
	InvoiceStatusPaid InvoiceStatus = "paid"
	InvoiceStatusVoid InvoiceStatus = "void"
)

// Line item kinds
const (
	LineKindBase            = "base"
	LineKindSeats           = "seats"
	LineKindContractOverage = "contract_overage"
	LineKindProrationCredit = "proration_credit"
	LineKindProrationCharge = "proration_charge"
)

// LineItem is one priced row of a quote or invoice. Credits carry a negative amount.
type LineItem struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitCents   int64  `json:"unit_cents"`
	AmountCents int64  `json:"amount_cents"`
}

// Quote is a priced set of line items
type Quote struct {
	Tier        plans.Tier     `json:"tier"`
	Interval    plans.Interval `json:"interval"`
	PeriodStart *time.Time     `json:"period_start,omitempty"`
	PeriodEnd   *time.Time     `json:"period_end,omitempty"`
	Lines       []LineItem     `json:"lines"`
	TotalCents  int64          `json:"total_cents"`
	Currency    string         `json:"currency"`
}

// Invoice represents a billing invoice for one finished cycle
type Invoice struct {
	ID          int64         `json:"id"`
	TeamID      int64         `json:"team_id"`
	Number      string        `json:"number"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	Status      InvoiceStatus `json:"status"`
	Lines       []LineItem    `json:"lines"`
	TotalCents  int64         `json:"total_cents"`
	Currency    string        `json:"currency"`
	DueAt       time.Time     `json:"due_at"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CreateSubscriptionRequest represents request to create a subscription
type CreateSubscriptionRequest struct {
	Tier      plans.Tier     `json:"tier" validate:"required,oneof=free solo team brokerage"`
	Interval  plans.Interval `json:"interval" validate:"omitempty,oneof=monthly annual"`
	TrialDays int            `json:"trial_days,omitempty" validate:"gte=0,lte=90"`
}

// ChangePlanRequest represents request to move a subscription to another tier or interval
type ChangePlanRequest struct {
	Tier     plans.Tier     `json:"tier" validate:"required,oneof=free solo team brokerage"`
	Interval plans.Interval `json:"interval,omitempty" validate:"omitempty,oneof=monthly annual"`
}

// CancelRequest represents request to cancel a subscription
type CancelRequest struct {
	Immediately bool `json:"immediately"`
}

var (
	// ErrNotFound is returned when a subscription or invoice does not exist
	ErrNotFound = errors.New("not found")

	// ErrCycleNotFinished is returned when closing a cycle that has not ended yet
	ErrCycleNotFinished = errors.New("billing cycle has not ended")

	// ErrCanceled is returned for operations that need a live subscription
	ErrCanceled = errors.New("subscription is canceled")

	// ErrAlreadyExists is returned when a team already has a subscription
	ErrAlreadyExists = errors.New("subscription already exists")
)

// InvoiceNumber formats the invoice number of a team's cycle that starts at periodStart
func InvoiceNumber(teamID int64, periodStart time.Time) string {
	return fmt.Sprintf("CR-%d-%s", teamID, periodStart.UTC().Format("200601"))
}

// sequencedNumber numbers a later cycle that starts in a month that already has
// invoices, such as the first paid cycle after a short trial: CR-7-202404-2.
func sequencedNumber(base string, existing int) string {
	if existing == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, existing+1)
}
