// Package enforcement applies plan limits to a team's live usage.
//
// An Enforcer resolves the team's effective plan and billing cycle from its
// subscription, reads usage counters (cached in Redis per cycle, counted in Postgres
// on a miss) and runs the checks from pkg/plans:
//
//	d, err := enforcer.CheckContract(ctx, teamID)
//	if plans.IsLimitError(err) {
//		httputil.WriteLimitError(w, err) // 402 Payment Required
//		return
//	}
//	// create the contract, flag d.Overage as billable
//	enforcer.RecordContract(ctx, teamID)
//
// Writes that change seats, invitations, templates or the plan call Invalidate so the
// next check recounts from the database.
package enforcement
