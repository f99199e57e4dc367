// Package usage meters workspace activity and maintains the counters
// that plan quotas are enforced against.
//
// # Overview
//
// Every authenticated API request and every webhook delivery produces a
// usage event. Events are written asynchronously so metering never adds
// request latency; each write also bumps the workspace's monthly counter
// row in the same transaction, which is what the quota checks read.
//
// The janitor rolls raw events up into per-day statistics and prunes
// events past the retention window. Monthly counters survive pruning.
//
// # Usage Example
//
//	recorder := usage.NewRecorder(db, logger)
//	metering := usage.NewMiddleware(recorder)
//	router.Use(metering.Handler)
//
//	// Janitor:
//	rollup := usage.NewRollup(db)
//	rollup.RollupDaily(ctx, time.Now().AddDate(0, 0, -1))
//	rollup.PruneEvents(ctx, 90*24*time.Hour)
//
// # Related Packages
//
//   - pkg/workspaces: reads usage_counters when enforcing plan quotas
//   - pkg/middleware: the gate fills the session carrier this package reads
package usage
