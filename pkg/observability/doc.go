// Package observability provides structured logging, Prometheus metrics,
// health checks, OpenTelemetry tracing bootstrap, panic recovery and
// graceful shutdown for the Atrium services.
//
// # Logging
//
// Logger is a thin wrapper over log/slog with a JSON handler:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("workspace_id", ws.ID).Info("workspace created")
//
// FromContext enriches a logger with request_id and user_id placed in the
// context by the HTTP middleware and the gate.
//
// # Metrics
//
// All metrics carry the atrium_ prefix. NewMetrics registers HTTP, gate,
// webhook delivery, storage, cache, database and business metrics on a
// caller-owned registry so tests can use isolated registries.
//
// # Health
//
// HealthChecker serves liveness and readiness probes; readiness pings
// postgres (required) and redis (optional, degraded when down).
package observability
