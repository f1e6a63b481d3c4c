package billing

import (
	"testing"

	"github.com/platinummonkey/closingroom/pkg/plans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plan(t *testing.T, tier plans.Tier) plans.Plan {
	t.Helper()
	p, err := plans.Lookup(tier)
	require.NoError(t, err)
	return p
}

func kinds(lines []LineItem) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Kind
	}
	return out
}

func TestBasePrice(t *testing.T) {
	assert.Equal(t, int64(9900), BasePrice(plan(t, plans.TierTeam), plans.IntervalMonthly))
	assert.Equal(t, int64(100980), BasePrice(plan(t, plans.TierTeam), plans.IntervalAnnual))
	assert.Equal(t, int64(29580), BasePrice(plan(t, plans.TierSolo), plans.IntervalAnnual))
	assert.Equal(t, int64(0), BasePrice(plan(t, plans.TierFree), plans.IntervalAnnual))
}

func TestCalculate_TeamMonthly(t *testing.T) {
	q := Calculate(plan(t, plans.TierTeam), plans.IntervalMonthly, 8, 137)

	require.Equal(t, []string{LineKindBase, LineKindSeats, LineKindContractOverage}, kinds(q.Lines))
	assert.Equal(t, int64(9900), q.Lines[0].AmountCents)

	assert.Equal(t, int64(3), q.Lines[1].Quantity)
	assert.Equal(t, int64(1900), q.Lines[1].UnitCents)
	assert.Equal(t, int64(5700), q.Lines[1].AmountCents)

	assert.Equal(t, int64(37), q.Lines[2].Quantity)
	assert.Equal(t, int64(3700), q.Lines[2].AmountCents)

	assert.Equal(t, int64(19300), q.TotalCents)
	assert.Equal(t, DefaultCurrency, q.Currency)
}

func TestCalculate_TeamAnnual(t *testing.T) {
	q := Calculate(plan(t, plans.TierTeam), plans.IntervalAnnual, 8, 100)

	require.Equal(t, []string{LineKindBase, LineKindSeats}, kinds(q.Lines))
	assert.Equal(t, int64(100980), q.Lines[0].AmountCents)
	assert.Equal(t, int64(22800), q.Lines[1].UnitCents)
	assert.Equal(t, int64(68400), q.Lines[1].AmountCents)
	assert.Equal(t, int64(169380), q.TotalCents)
}

func TestCalculate_FreeHasNoOverage(t *testing.T) {
	q := Calculate(plan(t, plans.TierFree), plans.IntervalMonthly, 1, 10)

	require.Equal(t, []string{LineKindBase}, kinds(q.Lines))
	assert.Equal(t, int64(0), q.TotalCents)
}

func TestCalculate_SoloSeatsNotBilled(t *testing.T) {
	q := Calculate(plan(t, plans.TierSolo), plans.IntervalMonthly, 3, 26)

	require.Equal(t, []string{LineKindBase, LineKindContractOverage}, kinds(q.Lines))
	assert.Equal(t, int64(2900+150), q.TotalCents)
}

func TestPlanChangeQuote(t *testing.T) {
	c := Cycle{Start: utc(2024, 4, 1, 0), End: utc(2024, 5, 1, 0)}
	at := utc(2024, 4, 16, 0)

	up := PlanChangeQuote(plan(t, plans.TierSolo), plan(t, plans.TierTeam), plans.IntervalMonthly, c, at)
	require.Equal(t, []string{LineKindProrationCredit, LineKindProrationCharge}, kinds(up.Lines))
	assert.Equal(t, int64(-1450), up.Lines[0].AmountCents)
	assert.Equal(t, int64(4950), up.Lines[1].AmountCents)
	assert.Equal(t, int64(3500), up.TotalCents)
	assert.Contains(t, up.Lines[0].Description, "15 days")
	assert.Equal(t, plans.TierTeam, up.Tier)
	require.NotNil(t, up.PeriodEnd)
	assert.Equal(t, c.End, *up.PeriodEnd)

	down := PlanChangeQuote(plan(t, plans.TierTeam), plan(t, plans.TierSolo), plans.IntervalMonthly, c, at)
	assert.Equal(t, int64(-3500), down.TotalCents)
}

func TestPlanChangeQuote_FromFree(t *testing.T) {
	c := Cycle{Start: utc(2024, 4, 1, 0), End: utc(2024, 5, 1, 0)}

	q := PlanChangeQuote(plan(t, plans.TierFree), plan(t, plans.TierSolo), plans.IntervalMonthly, c, utc(2024, 4, 16, 0))
	require.Equal(t, []string{LineKindProrationCharge}, kinds(q.Lines))
	assert.Equal(t, int64(1450), q.TotalCents)
}

func TestTotal_NeverNegative(t *testing.T) {
	lines := []LineItem{
		{Kind: LineKindBase, AmountCents: 2900},
		{Kind: LineKindProrationCredit, AmountCents: -4950},
	}
	assert.Equal(t, int64(-2050), Net(lines))
	assert.Equal(t, int64(0), Total(lines))
}

func TestInvoiceNumber(t *testing.T) {
	assert.Equal(t, "CR-42-202402", InvoiceNumber(42, utc(2024, 2, 29, 10)))
	assert.Equal(t, "CR-42-202402", sequencedNumber("CR-42-202402", 0))
	assert.Equal(t, "CR-42-202402-2", sequencedNumber("CR-42-202402", 1))
	assert.Equal(t, "CR-42-202402-3", sequencedNumber("CR-42-202402", 2))
}
