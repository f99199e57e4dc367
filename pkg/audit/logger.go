package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/contextkeys"
)

// Logger is the sink interface for audit events. Helpers in this package
// build events from request context; sinks only persist them.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
// if none is set so call sites never nil-check.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (noOpLogger) Close() error                                { return nil }

// NewEvent builds an event with actor and request context populated from
// the gate session and request metadata on the context.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if sess, ok := ctx.Value(contextkeys.SessionKey).(*auth.Session); ok && sess != nil {
		if sess.User != nil {
			event.UserID = &sess.User.ID
			event.Email = sess.User.Email
		}
		if sess.Workspace != nil {
			event.WorkspaceID = &sess.Workspace.ID
		}
		if sess.APIKeyID != 0 {
			event.APIKeyID = &sess.APIKeyID
		}
	}

	return event
}

// WithRequest fills HTTP request fields onto the event
func (e *Event) WithRequest(r *http.Request) *Event {
	if r == nil {
		return e
	}
	e.Method = r.Method
	e.Path = r.URL.Path
	e.IPAddress = clientIP(r)
	e.UserAgent = r.UserAgent()
	return e
}

// WithResource fills resource fields onto the event
func (e *Event) WithResource(resourceType ResourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// clientIP extracts the client IP, trusting proxy headers first
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// LogAuth records an authentication event for a user who may not have a
// session yet (failed signins carry only the attempted email).
func LogAuth(ctx context.Context, eventType EventType, userID *int64, email string, status EventStatus, message string) error {
	event := NewEvent(ctx, eventType, status)
	event.UserID = userID
	event.Email = email
	event.Message = message
	event.ResourceType = ResourceTypeSession
	return FromContext(ctx).Log(ctx, event)
}

// LogMutation records a successful state change with optional
// before/after details
func LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.WithResource(resourceType, resourceID)
	event.Changes = changes
	event.Message = message
	return FromContext(ctx).Log(ctx, event)
}

// LogDenied records an authorization denial
func LogDenied(ctx context.Context, resourceType ResourceType, resourceID, reason string) error {
	event := NewEvent(ctx, EventTypeAuthDenied, EventStatusDenied)
	event.WithResource(resourceType, resourceID)
	event.Message = reason
	return FromContext(ctx).Log(ctx, event)
}

// LogFailure records a failed operation with its error
func LogFailure(ctx context.Context, eventType EventType, message string, err error) error {
	event := NewEvent(ctx, eventType, EventStatusFailure)
	event.Message = message
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return FromContext(ctx).Log(ctx, event)
}
