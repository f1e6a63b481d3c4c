package plans

import "fmt"

// CountSeats returns the number of seats held by a team. Pending invitations hold a
// seat until they are accepted, revoked or expire.
func CountSeats(members, pendingInvites int) int {
	if members < 0 {
		members = 0
	}
	if pendingInvites < 0 {
		pendingInvites = 0
	}
	return members + pendingInvites
}

// CheckSeat decides whether one more seat (member or invitation) can be added
func CheckSeat(plan Plan, usage Usage) Decision {
	held := CountSeats(usage.Seats, usage.PendingInvites)
	d := Decision{
		Resource: ResourceSeats,
		Current:  int64(held),
		Limit:    int64(plan.MaxSeats),
	}

	if plan.MaxSeats > 0 && held >= plan.MaxSeats {
		d.Reason = fmt.Sprintf("the %s plan allows %d seat(s)", plan.DisplayName, plan.MaxSeats)
		return d
	}

	d.Allowed = true
	if held >= plan.IncludedSeats && plan.SeatPriceCents > 0 {
		d.Overage = true
		d.OverageCents = plan.SeatPriceCents
	}
	return d
}

// CheckContract decides whether one more contract can be created in the current cycle.
// Plans that allow overage never block; the extra contract is billed instead.
func CheckContract(plan Plan, usage Usage) Decision {
	d := Decision{
		Resource: ResourceContracts,
		Current:  int64(usage.ContractsThisCycle),
		Limit:    int64(plan.IncludedContracts),
	}

	if usage.ContractsThisCycle < plan.IncludedContracts {
		d.Allowed = true
		return d
	}

	if !plan.AllowOverage {
		d.Reason = fmt.Sprintf("the %s plan includes %d contracts per billing cycle", plan.DisplayName, plan.IncludedContracts)
		return d
	}

	d.Allowed = true
	d.Overage = true
	d.OverageCents = plan.ContractOverageCents
	return d
}

// CheckTemplate decides whether one more saved template can be created
func CheckTemplate(plan Plan, usage Usage) Decision {
	d := Decision{
		Resource: ResourceTemplates,
		Current:  int64(usage.Templates),
		Limit:    int64(plan.MaxTemplates),
	}
	if plan.MaxTemplates > 0 && usage.Templates >= plan.MaxTemplates {
		d.Reason = fmt.Sprintf("the %s plan allows %d templates", plan.DisplayName, plan.MaxTemplates)
		return d
	}
	d.Allowed = true
	return d
}

// CheckAIDraft decides whether one more AI draft can be requested in the current cycle
func CheckAIDraft(plan Plan, usage Usage) Decision {
	d := Decision{
		Resource: ResourceAIDrafts,
		Current:  int64(usage.AIDraftsThisCycle),
		Limit:    int64(plan.AIDraftsPerCycle),
	}

	switch {
	case plan.AIDraftsPerCycle == Unlimited:
		d.Limit = 0
		d.Allowed = true
	case plan.AIDraftsPerCycle == 0:
		d.Reason = fmt.Sprintf("AI drafting is not available on the %s plan", plan.DisplayName)
	case usage.AIDraftsThisCycle >= plan.AIDraftsPerCycle:
		d.Reason = fmt.Sprintf("the %s plan includes %d AI drafts per billing cycle", plan.DisplayName, plan.AIDraftsPerCycle)
	default:
		d.Allowed = true
	}
	return d
}

// ContractOverage returns the number of billable contracts beyond the included amount
// and their total price
func ContractOverage(plan Plan, contracts int) (int, int64) {
	over := contracts - plan.IncludedContracts
	if over <= 0 || !plan.AllowOverage {
		return 0, 0
	}
	return over, int64(over) * plan.ContractOverageCents
}

// SeatOverage returns the number of seats beyond the included amount and their monthly
// price
func SeatOverage(plan Plan, seats int) (int, int64) {
	over := seats - plan.IncludedSeats
	if over <= 0 {
		return 0, 0
	}
	return over, int64(over) * plan.SeatPriceCents
}

// CanDowngrade checks that a team's current usage fits within the target plan. Moving to
// the same tier is always allowed.
func CanDowngrade(from, to Plan, usage Usage) error {
	if from.Tier == to.Tier {
		return nil
	}
	seats := CountSeats(usage.Seats, usage.PendingInvites)
	if to.MaxSeats > 0 && seats > to.MaxSeats {
		return &LimitError{
			Resource: ResourceSeats,
			Current:  int64(seats),
			Limit:    int64(to.MaxSeats),
			Reason:   fmt.Sprintf("remove members or invitations to fit the %s plan's %d seat(s)", to.DisplayName, to.MaxSeats),
		}
	}
	if to.MaxTemplates > 0 && usage.Templates > to.MaxTemplates {
		return &LimitError{
			Resource: ResourceTemplates,
			Current:  int64(usage.Templates),
			Limit:    int64(to.MaxTemplates),
			Reason:   fmt.Sprintf("delete templates to fit the %s plan's %d templates", to.DisplayName, to.MaxTemplates),
		}
	}
	return nil
}
