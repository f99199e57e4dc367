// Package async provides safe concurrent execution primitives for
// background tasks: panic recovery, per-task timeouts, context
// cancellation and error collection.
//
// # Key Functions
//
// SafeGo runs fire-and-forget work that must never crash the process:
//
//	async.SafeGo(ctx, 30*time.Second, "webhook dispatch", func(ctx context.Context) error {
//		return dispatcher.Dispatch(ctx, event)
//	})
//
// WorkerPool bounds concurrency for a stream of tasks:
//
//	pool := async.NewWorkerPool(ctx, 10, "delivery retry", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//	pool.Submit(func(ctx context.Context) error { return deliver(ctx, id) })
//
// Batch processes a slice concurrently and collects the errors:
//
//	errs := async.Batch(ctx, deliveries, 4, "webhook retry", time.Minute,
//		func(ctx context.Context, d *Delivery) error { return retry(ctx, d) })
//
// # Related Packages
//
//   - pkg/webhooks: SafeGo for dispatch, Batch for the retry sweep
//   - pkg/usage: SafeGo for request metering
package async
