package plans

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPlan(t *testing.T, tier Tier) Plan {
	t.Helper()
	p, err := Lookup(tier)
	require.NoError(t, err)
	return p
}

func TestLookup(t *testing.T) {
	p, err := Lookup(TierTeam)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), p.BasePriceCents)
	assert.Equal(t, 5, p.IncludedSeats)

	_, err = Lookup("platinum")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("  Brokerage ")
	require.NoError(t, err)
	assert.Equal(t, TierBrokerage, tier)

	_, err = ParseTier("")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestAll_OrderedByPrice(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	assert.Equal(t, TierFree, all[0].Tier)
	assert.Equal(t, TierSolo, all[1].Tier)
	assert.Equal(t, TierTeam, all[2].Tier)
	assert.Equal(t, TierBrokerage, all[3].Tier)
}

func TestIntervalMonths(t *testing.T) {
	assert.Equal(t, 1, IntervalMonthly.Months())
	assert.Equal(t, 12, IntervalAnnual.Months())
	assert.True(t, IntervalAnnual.Valid())
	assert.False(t, Interval("weekly").Valid())
}

func TestCountSeats(t *testing.T) {
	assert.Equal(t, 5, CountSeats(3, 2))
	assert.Equal(t, 3, CountSeats(3, -1))
}

func TestCheckSeat(t *testing.T) {
	tests := []struct {
		name        string
		tier        Tier
		usage       Usage
		allowed     bool
		overage     bool
		overageCost int64
	}{
		{"free first seat", TierFree, Usage{Seats: 0}, true, false, 0},
		{"free second seat", TierFree, Usage{Seats: 1}, false, false, 0},
		{"team within included", TierTeam, Usage{Seats: 3, PendingInvites: 1}, true, false, 0},
		{"team extra seat billed", TierTeam, Usage{Seats: 4, PendingInvites: 1}, true, true, 1900},
		{"team at max", TierTeam, Usage{Seats: 20, PendingInvites: 5}, false, false, 0},
		{"brokerage unlimited", TierBrokerage, Usage{Seats: 400}, true, true, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CheckSeat(mustPlan(t, tt.tier), tt.usage)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.overage, d.Overage)
			assert.Equal(t, tt.overageCost, d.OverageCents)
			assert.Equal(t, ResourceSeats, d.Resource)
		})
	}
}

func TestCheckContract(t *testing.T) {
	free := mustPlan(t, TierFree)
	d := CheckContract(free, Usage{ContractsThisCycle: 2})
	assert.True(t, d.Allowed)
	assert.False(t, d.Overage)

	d = CheckContract(free, Usage{ContractsThisCycle: 3})
	assert.False(t, d.Allowed)
	require.Error(t, d.Err())
	assert.True(t, IsLimitError(d.Err()))

	solo := mustPlan(t, TierSolo)
	d = CheckContract(solo, Usage{ContractsThisCycle: 25})
	assert.True(t, d.Allowed)
	assert.True(t, d.Overage)
	assert.Equal(t, int64(150), d.OverageCents)
	assert.NoError(t, d.Err())
}

func TestCheckTemplate(t *testing.T) {
	free := mustPlan(t, TierFree)
	assert.True(t, CheckTemplate(free, Usage{Templates: 2}).Allowed)
	assert.False(t, CheckTemplate(free, Usage{Templates: 3}).Allowed)

	team := mustPlan(t, TierTeam)
	assert.True(t, CheckTemplate(team, Usage{Templates: 10000}).Allowed)
}

func TestCheckAIDraft(t *testing.T) {
	d := CheckAIDraft(mustPlan(t, TierFree), Usage{})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "not available")

	solo := mustPlan(t, TierSolo)
	assert.True(t, CheckAIDraft(solo, Usage{AIDraftsThisCycle: 19}).Allowed)
	assert.False(t, CheckAIDraft(solo, Usage{AIDraftsThisCycle: 20}).Allowed)

	d = CheckAIDraft(mustPlan(t, TierBrokerage), Usage{AIDraftsThisCycle: 1 << 20})
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(0), d.Limit)
}

func TestContractOverage(t *testing.T) {
	team := mustPlan(t, TierTeam)

	count, cents := ContractOverage(team, 99)
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), cents)

	count, cents = ContractOverage(team, 137)
	assert.Equal(t, 37, count)
	assert.Equal(t, int64(3700), cents)

	count, cents = ContractOverage(mustPlan(t, TierFree), 10)
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), cents)
}

func TestSeatOverage(t *testing.T) {
	count, cents := SeatOverage(mustPlan(t, TierTeam), 8)
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(5700), cents)

	count, _ = SeatOverage(mustPlan(t, TierTeam), 2)
	assert.Equal(t, 0, count)
}

func TestCanDowngrade(t *testing.T) {
	solo := mustPlan(t, TierSolo)
	team := mustPlan(t, TierTeam)

	err := CanDowngrade(team, solo, Usage{Seats: 1, Templates: 10})
	assert.NoError(t, err)

	err = CanDowngrade(team, solo, Usage{Seats: 1, PendingInvites: 1})
	require.Error(t, err)
	le, ok := AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, ResourceSeats, le.Resource)

	assert.NoError(t, CanDowngrade(solo, solo, Usage{Seats: 1, PendingInvites: 1}))

	err = CanDowngrade(solo, mustPlan(t, TierFree), Usage{Seats: 1, Templates: 4})
	le, ok = AsLimitError(err)
	require.True(t, ok)
	assert.Equal(t, ResourceTemplates, le.Resource)
}

func TestLimitError_Wrapped(t *testing.T) {
	err := fmt.Errorf("create contract: %w", &LimitError{Resource: ResourceContracts, Current: 3, Limit: 3})
	assert.True(t, IsLimitError(err))
	assert.False(t, IsLimitError(errors.New("other")))
	assert.Contains(t, err.Error(), "contracts (3/3)")
}
