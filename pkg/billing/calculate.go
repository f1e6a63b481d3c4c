package billing

import (
	"fmt"
	"time"

	"github.com/platinummonkey/closingroom/pkg/plans"
)

// DefaultCurrency is used when none is configured
const DefaultCurrency = "usd"

// BasePrice returns the price of one cycle of the plan's base fee
func BasePrice(plan plans.Plan, interval plans.Interval) int64 {
	if interval != plans.IntervalAnnual {
		return plan.BasePriceCents
	}
	gross := plan.BasePriceCents * 12
	return gross - percentOf(gross, plan.AnnualDiscountPercent)
}

// Calculate prices one cycle of a plan for the given seat count and number of contracts
// created during the cycle
func Calculate(plan plans.Plan, interval plans.Interval, seats, contracts int) Quote {
	months := int64(interval.Months())
	q := Quote{
		Tier:     plan.Tier,
		Interval: interval,
		Currency: DefaultCurrency,
	}

	q.Lines = append(q.Lines, BaseLine(plan, interval))

	if extra, monthly := plans.SeatOverage(plan, seats); extra > 0 && monthly > 0 {
		unit := plan.SeatPriceCents * months
		q.Lines = append(q.Lines, LineItem{
			Kind:        LineKindSeats,
			Description: fmt.Sprintf("%d additional seat(s)", extra),
			Quantity:    int64(extra),
			UnitCents:   unit,
			AmountCents: monthly * months,
		})
	}

	if count, cents := plans.ContractOverage(plan, contracts); count > 0 {
		q.Lines = append(q.Lines, LineItem{
			Kind:        LineKindContractOverage,
			Description: fmt.Sprintf("%d contract(s) over the included %d", count, plan.IncludedContracts),
			Quantity:    int64(count),
			UnitCents:   plan.ContractOverageCents,
			AmountCents: cents,
		})
	}

	q.TotalCents = Total(q.Lines)
	return q
}

// BaseLine returns the base fee line of one cycle
func BaseLine(plan plans.Plan, interval plans.Interval) LineItem {
	base := BasePrice(plan, interval)
	return LineItem{
		Kind:        LineKindBase,
		Description: fmt.Sprintf("%s plan (%s)", plan.DisplayName, interval),
		Quantity:    1,
		UnitCents:   base,
		AmountCents: base,
	}
}

// PlanChangeQuote prices a mid-cycle move between plans: a credit for the unused part of
// the old base fee and a charge for the unused part of the new one. The total is the net
// amount and is negative when the change yields a credit.
func PlanChangeQuote(from, to plans.Plan, interval plans.Interval, c Cycle, at time.Time) Quote {
	q := Quote{
		Tier:        to.Tier,
		Interval:    interval,
		PeriodStart: timePtr(c.Start),
		PeriodEnd:   timePtr(c.End),
		Currency:    DefaultCurrency,
	}
	days := DaysRemaining(c, at)

	if credit := Prorate(BasePrice(from, interval), c, at); credit > 0 {
		q.Lines = append(q.Lines, LineItem{
			Kind:        LineKindProrationCredit,
			Description: fmt.Sprintf("Unused time on %s plan (%d days)", from.DisplayName, days),
			Quantity:    1,
			UnitCents:   -credit,
			AmountCents: -credit,
		})
	}
	if charge := Prorate(BasePrice(to, interval), c, at); charge > 0 {
		q.Lines = append(q.Lines, LineItem{
			Kind:        LineKindProrationCharge,
			Description: fmt.Sprintf("Remaining time on %s plan (%d days)", to.DisplayName, days),
			Quantity:    1,
			UnitCents:   charge,
			AmountCents: charge,
		})
	}

	q.TotalCents = Net(q.Lines)
	return q
}

// Net sums line item amounts, credits included
func Net(lines []LineItem) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.AmountCents
	}
	return sum
}

// Total sums line item amounts; the result is never negative
func Total(lines []LineItem) int64 {
	if sum := Net(lines); sum > 0 {
		return sum
	}
	return 0
}

// percentOf returns pct percent of v rounded half-up
func percentOf(v, pct int64) int64 {
	if v <= 0 || pct <= 0 {
		return 0
	}
	return (v*pct + 50) / 100
}

func timePtr(t time.Time) *time.Time {
	return &t
}
