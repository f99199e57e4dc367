package usage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/contextkeys"
)

// gateStub fills the session carrier the way the real gate does after
// resolving credentials.
func gateStub(sess *auth.Session, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess != nil {
			if carrier := contextkeys.CarrierFrom(r.Context()); carrier != nil {
				carrier.Session = sess
			}
		}
		w.WriteHeader(status)
	})
}

func testSession() *auth.Session {
	return &auth.Session{
		ID:        "sess-1",
		User:      &auth.User{ID: 7, Email: "owner@acme.test"},
		Workspace: &auth.Workspace{ID: 1, Slug: "acme", Plan: "pro"},
		Role:      auth.RoleOwner,
	}
}

func TestMiddlewareMetersAuthenticatedRequests(t *testing.T) {
	recorder := newTestRecorder(t)
	middleware := NewMiddleware(recorder)

	handler := middleware.Handler(gateStub(testSession(), http.StatusOK))
	req := httptest.NewRequest(http.MethodGet, "/api/internal/v1/workspace", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// Recording is asynchronous; wait for the counter to land.
	assert.Eventually(t, func() bool {
		counters, err := recorder.CurrentCounters(context.Background(), 1)
		return err == nil && counters.APIRequests == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMiddlewareCapturesEventDetails(t *testing.T) {
	recorder := newTestRecorder(t)
	middleware := NewMiddleware(recorder)

	sess := testSession()
	sess.APIKeyID = 9
	handler := middleware.Handler(gateStub(sess, http.StatusNotFound))
	req := httptest.NewRequest(http.MethodDelete, "/api/internal/v1/webhooks/4", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var event Event
	require.Eventually(t, func() bool {
		var userID, apiKeyID int64
		err := recorder.db.QueryRow(`
			SELECT workspace_id, kind, user_id, api_key_id, method, path, status_code
			FROM usage_events
		`).Scan(&event.WorkspaceID, &event.Kind, &userID, &apiKeyID,
			&event.Method, &event.Path, &event.StatusCode)
		if err != nil {
			return false
		}
		event.UserID, event.APIKeyID = &userID, &apiKeyID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), event.WorkspaceID)
	assert.Equal(t, KindAPIRequest, event.Kind)
	assert.Equal(t, int64(7), *event.UserID)
	assert.Equal(t, int64(9), *event.APIKeyID)
	assert.Equal(t, http.MethodDelete, event.Method)
	assert.Equal(t, "/api/internal/v1/webhooks/4", event.Path)
	assert.Equal(t, http.StatusNotFound, event.StatusCode)
}

func TestMiddlewareSkipsUnauthenticatedRequests(t *testing.T) {
	recorder := newTestRecorder(t)
	middleware := NewMiddleware(recorder)

	handler := middleware.Handler(gateStub(nil, http.StatusUnauthorized))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// Give any stray async write a moment, then confirm nothing landed.
	time.Sleep(50 * time.Millisecond)
	var count int
	require.NoError(t, recorder.db.QueryRow(`SELECT COUNT(*) FROM usage_events`).Scan(&count))
	assert.Zero(t, count)
}
