package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// A timeout <= 0 runs fn without a deadline. Errors and panics are logged with the
// logger carried by parentCtx.
//
// Example:
//
//	SafeGo(context.WithoutCancel(r.Context()), 30*time.Second, "webhook delivery", func(ctx context.Context) error {
//	    return deliver(ctx, hook, event)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := withOptionalTimeout(parentCtx, timeout)
		defer cancel()

		logger := observability.FromContext(parentCtx).WithField("task", taskName)
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", fmt.Sprint(r)).WithField("stack", string(debug.Stack())).
					Error("Background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
// Still provides panic recovery and context support.
//
// Example:
//
//	SafeGoNoError(ctx, 0, "rate limiter cleanup", func(ctx context.Context) {
//	    <-ctx.Done()
//	})
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Batch runs fn for every item with at most workers in flight and returns the
// failures in item order. Each item gets its own timeout; a panicking item is logged and
// reported as an error. Items not started before ctx is done fail with ctx.Err().
//
// Example:
//
//	errs := Batch(ctx, parties, 4, "contract notification", 30*time.Second, func(ctx context.Context, p Party) error {
//	    return notifier.NotifyContractSent(ctx, p.Email, p.Name, title, team)
//	})
//	for _, err := range errs {
//	    logger.WithError(err).Warn("Failed to email contract party")
//	}
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	results := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = err
			continue
		}
		g.Go(func() error {
			results[i] = runItem(ctx, timeout, taskName, func(ctx context.Context) error {
				return fn(ctx, item)
			})
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func runItem(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	ctx, cancel := withOptionalTimeout(parentCtx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			observability.FromContext(parentCtx).WithField("task", taskName).
				WithField("panic", fmt.Sprint(r)).WithField("stack", string(debug.Stack())).
				Error("Batch item panicked")
			err = fmt.Errorf("%s: panic: %v", taskName, r)
		}
	}()

	return fn(ctx)
}
