package audit

import (
	"net/http"
	"strings"
	"time"
)

// Middleware injects the audit logger into request context and records
// request-level audit events for mutations and denials.
type Middleware struct {
	logger         Logger
	logAllRequests bool
}

// NewMiddleware creates audit middleware. With logAllRequests false only
// mutations, errors and sensitive reads are recorded.
func NewMiddleware(logger Logger, logAllRequests bool) *Middleware {
	return &Middleware{
		logger:         logger,
		logAllRequests: logAllRequests,
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler with audit logging. It runs inside the
// gate so sessions are already on the context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := WithLogger(r.Context(), m.logger)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		if !m.logAllRequests && !shouldLogRequest(r, wrapped.statusCode) {
			return
		}

		status := EventStatusSuccess
		if wrapped.statusCode >= 400 {
			status = EventStatusFailure
		}
		if wrapped.statusCode == http.StatusForbidden || wrapped.statusCode == http.StatusUnauthorized {
			status = EventStatusDenied
		}

		event := NewEvent(ctx, eventTypeForRequest(r), status).WithRequest(r)
		event.StatusCode = wrapped.statusCode
		event.Metadata["duration_ms"] = time.Since(start).Milliseconds()

		// Never fail the response over a logging error
		_ = m.logger.Log(ctx, event)
	})
}

// shouldLogRequest reports whether a request is audit-worthy when not
// logging everything: mutations, failures and sensitive reads.
func shouldLogRequest(r *http.Request, statusCode int) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}
	if statusCode >= 400 {
		return true
	}
	return isSensitivePath(r.URL.Path)
}

func isSensitivePath(path string) bool {
	for _, prefix := range []string{"/auth", "/api/v1/api-keys", "/api/internal/v1/audit", "/api/internal/v1/billing"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// eventTypeForRequest maps a request path to its audit event family. The
// handlers record precise per-operation events; this request-level record
// is the coarse backstop.
func eventTypeForRequest(r *http.Request) EventType {
	path := r.URL.Path
	switch {
	case strings.Contains(path, "/webhooks"):
		return EventTypeWebhookUpdate
	case strings.Contains(path, "/api-keys"):
		return EventTypeAPIKeyCreate
	case strings.Contains(path, "/invitations"):
		return EventTypeInvitationCreate
	case strings.Contains(path, "/members"):
		return EventTypeMemberAdd
	case strings.Contains(path, "/billing"):
		return EventTypeSubscriptionChange
	case strings.HasPrefix(path, "/auth"):
		return EventTypeAuthSignin
	default:
		return EventTypeWorkspaceUpdate
	}
}
