package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveThroughMiddleware(t *testing.T, m *Middleware, method, path string, status int) {
	t.Helper()
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// handlers see the audit logger on the context
		assert.NotNil(t, FromContext(r.Context()))
		w.WriteHeader(status)
	}))
	r := httptest.NewRequest(method, path, nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)
}

func TestMiddlewareLogsMutations(t *testing.T) {
	sink := &recordingLogger{}
	m := NewMiddleware(sink, false)

	serveThroughMiddleware(t, m, "POST", "/api/internal/v1/workspaces", http.StatusCreated)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, EventStatusSuccess, sink.events[0].Status)
	assert.Equal(t, http.StatusCreated, sink.events[0].StatusCode)
	assert.Equal(t, "POST", sink.events[0].Method)
}

func TestMiddlewareSkipsPlainReads(t *testing.T) {
	sink := &recordingLogger{}
	m := NewMiddleware(sink, false)

	serveThroughMiddleware(t, m, "GET", "/api/internal/v1/workspaces", http.StatusOK)
	assert.Zero(t, sink.count())
}

func TestMiddlewareLogsSensitiveReads(t *testing.T) {
	sink := &recordingLogger{}
	m := NewMiddleware(sink, false)

	serveThroughMiddleware(t, m, "GET", "/api/v1/api-keys", http.StatusOK)
	assert.Equal(t, 1, sink.count())
}

func TestMiddlewareLogsDenials(t *testing.T) {
	sink := &recordingLogger{}
	m := NewMiddleware(sink, false)

	serveThroughMiddleware(t, m, "GET", "/api/internal/v1/members", http.StatusForbidden)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, EventStatusDenied, sink.events[0].Status)
}

func TestMiddlewareLogAllRequests(t *testing.T) {
	sink := &recordingLogger{}
	m := NewMiddleware(sink, true)

	serveThroughMiddleware(t, m, "GET", "/healthz", http.StatusOK)
	assert.Equal(t, 1, sink.count())
}
