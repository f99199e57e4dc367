// Package billing manages workspace subscriptions and plan changes.
//
// # Overview
//
// Each workspace has at most one subscription row; workspaces that never
// left the free plan have none and are served a synthesized free
// subscription. Plan changes write the subscription and push the plan to
// the workspace record, which is what quota enforcement reads.
//
// Payment-provider webhooks arrive signed with HMAC-SHA256 over
// "<timestamp>.<payload>"; stale or unverifiable events are rejected,
// unknown event types are acknowledged so the provider stops retrying.
//
// # Related Packages
//
//   - pkg/workspaces: owns the enforced plan and its quotas
//   - pkg/usage: monthly counters the quotas are checked against
package billing
