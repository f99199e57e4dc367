package audit

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/contextkeys"
)

func testSession(workspaceID int64) *auth.Session {
	return &auth.Session{
		ID:        "sess-1",
		User:      &auth.User{ID: 7, Email: "owner@acme.test"},
		Workspace: &auth.Workspace{ID: workspaceID, Slug: "acme", Name: "Acme", Plan: "pro"},
		Role:      auth.RoleOwner,
	}
}

func newHandlerFixture(t *testing.T) (*Handlers, *DBLogger) {
	t.Helper()
	logger := newDBLogger(t)
	return NewHandlers(NewDBStore(logger)), logger
}

func TestListEventsScopedToSessionWorkspace(t *testing.T) {
	h, logger := newHandlerFixture(t)
	seedEvent(t, logger, nil)
	seedEvent(t, logger, func(e *Event) { e.WorkspaceID = int64Ptr(2) })

	r := httptest.NewRequest("GET", "/api/internal/v1/audit/events", nil)
	w := httptest.NewRecorder()
	require.NoError(t, h.ListEvents(w, r, testSession(1)))

	var resp struct {
		Events []*Event `json:"events"`
		Count  int      `json:"count"`
		Limit  int      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 100, resp.Limit)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, int64(1), *resp.Events[0].WorkspaceID)
}

func TestListEventsFilterPassthrough(t *testing.T) {
	h, logger := newHandlerFixture(t)
	seedEvent(t, logger, nil)
	seedEvent(t, logger, func(e *Event) {
		e.EventType = EventTypeAuthDenied
		e.Status = EventStatusDenied
	})

	r := httptest.NewRequest("GET", "/api/internal/v1/audit/events?event_types=auth.denied&limit=5", nil)
	w := httptest.NewRecorder()
	require.NoError(t, h.ListEvents(w, r, testSession(1)))

	var resp struct {
		Events []*Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventTypeAuthDenied, resp.Events[0].EventType)
}

func TestGetEvent(t *testing.T) {
	h, logger := newHandlerFixture(t)
	event := seedEvent(t, logger, nil)

	r := httptest.NewRequest("GET", "/api/internal/v1/audit/events/1", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "1"})
	w := httptest.NewRecorder()
	require.NoError(t, h.GetEvent(w, r, testSession(1)))

	var got Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, event.ID, got.ID)

	// other workspace cannot read it
	r = httptest.NewRequest("GET", "/api/internal/v1/audit/events/1", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "1"})
	err := h.GetEvent(httptest.NewRecorder(), r, testSession(2))
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	// bad id
	r = httptest.NewRequest("GET", "/api/internal/v1/audit/events/nope", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "nope"})
	err = h.GetEvent(httptest.NewRecorder(), r, testSession(1))
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))
}

func TestExportEventsCSV(t *testing.T) {
	h, logger := newHandlerFixture(t)
	seedEvent(t, logger, nil)

	r := httptest.NewRequest("GET", "/api/internal/v1/audit/export?format=csv", nil)
	w := httptest.NewRecorder()
	require.NoError(t, h.ExportEvents(w, r, testSession(1)))

	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit-logs.csv")
	assert.Contains(t, w.Body.String(), "owner@acme.test")
}

func TestExportEventsDefaultsToJSON(t *testing.T) {
	h, logger := newHandlerFixture(t)
	seedEvent(t, logger, nil)

	r := httptest.NewRequest("GET", "/api/internal/v1/audit/export", nil)
	w := httptest.NewRecorder()
	require.NoError(t, h.ExportEvents(w, r, testSession(1)))

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.True(t, json.Valid(w.Body.Bytes()))
}

func TestGetStatsHandler(t *testing.T) {
	h, logger := newHandlerFixture(t)
	seedEvent(t, logger, nil)
	seedEvent(t, logger, func(e *Event) {
		e.EventType = EventTypeAuthDenied
		e.Status = EventStatusDenied
	})

	r := httptest.NewRequest("GET", "/api/internal/v1/audit/stats", nil)
	w := httptest.NewRecorder()
	require.NoError(t, h.GetStats(w, r, testSession(1)))

	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.AccessDenials)
}

func TestNewEventReadsSessionFromContext(t *testing.T) {
	sess := testSession(1)
	sess.APIKeyID = 9

	ctx := contextkeys.WithSession(context.Background(), sess)

	event := NewEvent(ctx, EventTypeAPIKeyCreate, EventStatusSuccess)
	require.NotNil(t, event.UserID)
	assert.Equal(t, int64(7), *event.UserID)
	assert.Equal(t, "owner@acme.test", event.Email)
	require.NotNil(t, event.WorkspaceID)
	assert.Equal(t, int64(1), *event.WorkspaceID)
	require.NotNil(t, event.APIKeyID)
	assert.Equal(t, int64(9), *event.APIKeyID)
}
