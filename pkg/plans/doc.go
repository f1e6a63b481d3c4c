// Package plans defines the subscription plan catalog and the pure arithmetic used to
// enforce it: seat counting, contract quotas with overage pricing, template and AI
// draft limits.
//
// # Plans
//
// Free:
//   - $0/month, 1 seat, 3 contracts per cycle (hard stop), 3 templates
//
// Solo ($29/month):
//   - 1 seat, 25 contracts then $1.50 each, 25 templates, 20 AI drafts
//
// Team ($99/month):
//   - 5 seats included (max 25, $19/extra seat), 100 contracts then $1.00 each
//
// Brokerage ($499/month):
//   - 25 seats included (unlimited, $15/extra seat), 1000 contracts then $0.50 each
//
// Paid plans take 15% off when billed annually.
//
// # Usage Example
//
//	plan, err := plans.Lookup(plans.TierTeam)
//	decision := plans.CheckContract(plan, plans.Usage{ContractsThisCycle: 120})
//	if !decision.Allowed {
//		return decision.Err()
//	}
//	if decision.Overage {
//		// bill decision.OverageCents on the next invoice
//	}
//
// Nothing in this package touches storage; see pkg/enforcement for the service that
// reads usage and applies these checks.
package plans
