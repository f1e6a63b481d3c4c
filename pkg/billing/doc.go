// Package billing provides subscription management, billing-cycle date math and invoice
// calculation for the plans defined in pkg/plans.
//
// # Overview
//
// Every team has one subscription. Its anchor time fixes the day of month (and month, for
// annual billing) on which cycles renew. Cycles are half-open [Start, End) in UTC; anchor
// days that do not exist in a month clamp to the month's last day.
//
// Invoices are generated when a cycle closes and cover that cycle:
//   - the base fee of the tier the cycle started on
//   - seats beyond the included amount (seat price times months in the interval)
//   - contracts created during the cycle beyond the included amount
//   - proration credits and charges recorded by plan changes during the cycle
//
// Invoice totals never go negative; all amounts are integer cents.
//
// # Usage Example
//
// Preview the current cycle:
//
//	quote, err := service.Quote(ctx, teamID)
//	fmt.Printf("Due so far: %d cents\n", quote.TotalCents)
//
// Close finished cycles:
//
//	runner := billing.NewRunner(service, 8, nil)
//	res, err := runner.Run(ctx, time.Now())
//
// # Related Packages
//
//   - pkg/plans: catalog and limit arithmetic
//   - pkg/enforcement: usage counting for the current cycle
package billing
