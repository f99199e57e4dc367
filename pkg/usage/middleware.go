package usage

import (
	"net/http"
	"time"

	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/contextkeys"
)

// Middleware meters API requests per workspace. It runs OUTSIDE the gate,
// so it observes the resolved session through a context carrier the gate
// fills; requests that never resolve a session (health checks, signin)
// are not metered.
type Middleware struct {
	recorder *Recorder
}

// NewMiddleware creates usage metering middleware
func NewMiddleware(recorder *Recorder) *Middleware {
	return &Middleware{recorder: recorder}
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
		sw.ResponseWriter.WriteHeader(code)
	}
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler with request metering
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		carrier := &contextkeys.SessionCarrier{}
		ctx := contextkeys.WithSessionCarrier(r.Context(), carrier)

		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		sess, ok := carrier.Session.(*auth.Session)
		if !ok || sess == nil || sess.Workspace == nil {
			return
		}

		event := &Event{
			WorkspaceID: sess.Workspace.ID,
			Kind:        KindAPIRequest,
			Method:      r.Method,
			Path:        r.URL.Path,
			StatusCode:  wrapped.statusCode,
			DurationMS:  time.Since(start).Milliseconds(),
		}
		if sess.User != nil {
			event.UserID = &sess.User.ID
		}
		if sess.APIKeyID != 0 {
			event.APIKeyID = &sess.APIKeyID
		}
		m.recorder.RecordAsync(event)
	})
}
