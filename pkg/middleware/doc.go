// Package middleware implements the authorization gate and rate limiting.
//
// # The Gate
//
// Every resource route is registered through Gate.Wrap, which is the only
// place sessions are resolved and capabilities are checked:
//
//	gate := middleware.NewGate(sessionManager, keyResolver, roleRegistry, logger)
//	router.Handle("/api/v1/workspaces/{id}/webhooks",
//		gate.Wrap(h.CreateWebhook, auth.CapManageWebhooks)).Methods("POST")
//
// Resolution order is fixed: a Bearer API key in the Authorization header
// wins over the session cookie. Unauthenticated requests get 401, sessions
// missing a required capability get 403, and in both cases the wrapped
// handler never runs.
//
// Handlers behind the gate return errors instead of writing error bodies;
// the gate translates pkg/apierr codes into statuses (not_found 404,
// invalid 400, conflict 409, quota_exceeded 429) and collapses everything
// uncoded to a 500 with a generic body.
//
// # Rate Limiting
//
// RateLimitMiddleware (in-memory) and DistributedRateLimitMiddleware
// (Redis-backed, shared across instances) key limits on the resolved
// session: per-key for bearer callers, per-user for dashboard sessions,
// per-IP otherwise. Both run after the gate.
//
// # Related Packages
//
//   - pkg/auth: session and capability types
//   - pkg/rbac: role expansion and the pure capability evaluator
//   - pkg/apierr: the error codes the gate translates
package middleware
