package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

// CycleCloser is the part of Service the runner needs
type CycleCloser interface {
	CloseCycle(ctx context.Context, teamID int64, at time.Time) (*Invoice, error)
	DueForRenewal(ctx context.Context, at time.Time) ([]int64, error)
}

// RunResult summarizes one runner pass
type RunResult struct {
	Teams    int
	Invoices []*Invoice
	Failed   map[int64]error
}

// Runner closes every finished billing cycle with bounded concurrency
type Runner struct {
	svc         CycleCloser
	concurrency int
	onInvoice   func(ctx context.Context, inv *Invoice)
}

// NewRunner creates a runner. onInvoice, when set, is called for each generated invoice.
func NewRunner(svc CycleCloser, concurrency int, onInvoice func(ctx context.Context, inv *Invoice)) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Runner{svc: svc, concurrency: concurrency, onInvoice: onInvoice}
}

// maxCatchUp bounds how many missed cycles a single pass closes for one team
const maxCatchUp = 24

// Run closes all cycles that ended at or before at. A team that missed several cycles
// has each of them invoiced in order. Per-team failures are collected in the result;
// the returned error is only set when the due list cannot be read or ctx is done.
func (r *Runner) Run(ctx context.Context, at time.Time) (*RunResult, error) {
	teams, err := r.svc.DueForRenewal(ctx, at)
	if err != nil {
		return nil, err
	}

	res := &RunResult{Teams: len(teams), Failed: map[int64]error{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, teamID := range teams {
		teamID := teamID
		g.Go(func() error {
			defer func() {
				if err := observability.MustRecover(recover()); err != nil {
					mu.Lock()
					res.Failed[teamID] = err
					mu.Unlock()
				}
			}()
			for i := 0; i < maxCatchUp; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				inv, err := r.svc.CloseCycle(gctx, teamID, at)
				if errors.Is(err, ErrCycleNotFinished) || errors.Is(err, ErrCanceled) {
					return nil
				}
				if err != nil {
					mu.Lock()
					res.Failed[teamID] = fmt.Errorf("close cycle: %w", err)
					mu.Unlock()
					return nil
				}

				mu.Lock()
				res.Invoices = append(res.Invoices, inv)
				mu.Unlock()
				if r.onInvoice != nil {
					r.onInvoice(gctx, inv)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}
