// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs fire-and-forget work such as webhook deliveries with panic recovery, an
// optional timeout and logging through the context's logger:
//
//	async.SafeGo(context.WithoutCancel(ctx), 30*time.Second, "webhook delivery", func(ctx context.Context) error {
//		return deliver(ctx)
//	})
//
// Batch fans a slice out over a bounded number of goroutines and collects the errors.
// Contract notifications use it to email every party:
//
//	errs := async.Batch(ctx, parties, 4, "contract notification", 30*time.Second, notify)
package async
