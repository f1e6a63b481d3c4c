package plans

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tier identifies a subscription plan
type Tier string

const (
	TierFree      Tier = "free"
	TierSolo      Tier = "solo"
	TierTeam      Tier = "team"
	TierBrokerage Tier = "brokerage"
)

// Interval is the billing interval of a subscription
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalAnnual  Interval = "annual"
)

// Months returns the number of months covered by one billing cycle
func (i Interval) Months() int {
	if i == IntervalAnnual {
		return 12
	}
	return 1
}

// Valid reports whether the interval is known
func (i Interval) Valid() bool {
	return i == IntervalMonthly || i == IntervalAnnual
}

// Unlimited marks an AI draft allowance with no cap
const Unlimited = -1

// Plan describes the limits and prices of a tier. All prices are in cents.
type Plan struct {
	Tier                  Tier   `json:"tier"`
	DisplayName           string `json:"display_name"`
	BasePriceCents        int64  `json:"base_price_cents"`
	AnnualDiscountPercent int64  `json:"annual_discount_percent"`
	IncludedSeats         int    `json:"included_seats"`
	MaxSeats              int    `json:"max_seats"` // 0 = unlimited
	SeatPriceCents        int64  `json:"seat_price_cents"`
	IncludedContracts     int    `json:"included_contracts"`
	ContractOverageCents  int64  `json:"contract_overage_cents"`
	AllowOverage          bool   `json:"allow_overage"`
	MaxTemplates          int    `json:"max_templates"`       // 0 = unlimited
	AIDraftsPerCycle      int    `json:"ai_drafts_per_cycle"` // 0 = disabled, -1 = unlimited
}

// Usage is the current consumption of a team within its billing cycle
type Usage struct {
	Seats              int `json:"seats"`
	PendingInvites     int `json:"pending_invites"`
	ContractsThisCycle int `json:"contracts_this_cycle"`
	Templates          int `json:"templates"`
	AIDraftsThisCycle  int `json:"ai_drafts_this_cycle"`
}

// Resource names used in decisions and limit errors
const (
	ResourceSeats     = "seats"
	ResourceContracts = "contracts"
	ResourceTemplates = "templates"
	ResourceAIDrafts  = "ai_drafts"
)

// Decision is the outcome of a plan check
type Decision struct {
	Resource     string `json:"resource"`
	Allowed      bool   `json:"allowed"`
	Overage      bool   `json:"overage"`
	OverageCents int64  `json:"overage_cents,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Current      int64  `json:"current"`
	Limit        int64  `json:"limit"` // 0 = unlimited
}

// Err returns a *LimitError for a denied decision and nil otherwise
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitError{
		Resource: d.Resource,
		Current:  d.Current,
		Limit:    d.Limit,
		Reason:   d.Reason,
	}
}

// LimitError is returned when a plan limit blocks an operation
type LimitError struct {
	Resource string
	Current  int64
	Limit    int64
	Reason   string
}

func (e *LimitError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("plan limit reached for %s: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("plan limit reached for %s (%d/%d)", e.Resource, e.Current, e.Limit)
}

// IsLimitError checks if an error is (or wraps) a plan limit error
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// AsLimitError extracts the limit error from err
func AsLimitError(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ErrUnknownTier is returned for tiers outside the catalog
var ErrUnknownTier = errors.New("unknown plan tier")

var catalog = map[Tier]Plan{
	TierFree: {
		Tier:                  TierFree,
		DisplayName:           "Free",
		BasePriceCents:        0,
		AnnualDiscountPercent: 0,
		IncludedSeats:         1,
		MaxSeats:              1,
		SeatPriceCents:        0,
		IncludedContracts:     3,
		ContractOverageCents:  0,
		AllowOverage:          false,
		MaxTemplates:          3,
		AIDraftsPerCycle:      0,
	},
	TierSolo: {
		Tier:                  TierSolo,
		DisplayName:           "Solo",
		BasePriceCents:        2900, // $29/month
		AnnualDiscountPercent: 15,
		IncludedSeats:         1,
		MaxSeats:              1,
		SeatPriceCents:        0,
		IncludedContracts:     25,
		ContractOverageCents:  150, // $1.50 per contract over quota
		AllowOverage:          true,
		MaxTemplates:          25,
		AIDraftsPerCycle:      20,
	},
	TierTeam: {
		Tier:                  TierTeam,
		DisplayName:           "Team",
		BasePriceCents:        9900, // $99/month
		AnnualDiscountPercent: 15,
		IncludedSeats:         5,
		MaxSeats:              25,
		SeatPriceCents:        1900, // $19 per extra seat
		IncludedContracts:     100,
		ContractOverageCents:  100,
		AllowOverage:          true,
		MaxTemplates:          0,
		AIDraftsPerCycle:      200,
	},
	TierBrokerage: {
		Tier:                  TierBrokerage,
		DisplayName:           "Brokerage",
		BasePriceCents:        49900, // $499/month
		AnnualDiscountPercent: 15,
		IncludedSeats:         25,
		MaxSeats:              0,
		SeatPriceCents:        1500,
		IncludedContracts:     1000,
		ContractOverageCents:  50,
		AllowOverage:          true,
		MaxTemplates:          0,
		AIDraftsPerCycle:      Unlimited,
	},
}

// Lookup returns the plan for a tier
func Lookup(tier Tier) (Plan, error) {
	plan, ok := catalog[tier]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return plan, nil
}

// ParseTier parses a tier name, case-insensitively
func ParseTier(s string) (Tier, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalog[tier]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return tier, nil
}

// All returns every plan ordered by base price
func All() []Plan {
	all := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].BasePriceCents < all[j].BasePriceCents
	})
	return all
}
