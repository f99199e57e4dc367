package sso

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/middleware"
	"github.com/platinummonkey/atrium/pkg/rbac"
)

// newHandlersFixture wires handlers, a session manager and a gate over one
// sqlite database, the way cmd/atrium assembles them.
func newHandlersFixture(t *testing.T) (*Handlers, *mux.Router, *SessionManager) {
	t.Helper()
	db := newTestDB(t)

	sessions := NewSessionManager(db, time.Hour)
	handlers := NewHandlers(db, "https://atrium.example.com", sessions, nil)
	handlers.SetCookie("atrium_session", false)

	gate := middleware.NewGate(sessions, nil, rbac.NewRegistry(nil), nil)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router, gate)
	return handlers, router, sessions
}

func signedInCookie(t *testing.T, handlers *Handlers, sessions *SessionManager, role auth.Role) *http.Cookie {
	t.Helper()

	result, err := handlers.provisioner.Provision(context.Background(), &Identity{
		ExternalID: "idp|admin",
		Email:      "admin@example.com",
		FullName:   "Admin",
	}, &ProviderConfig{ID: 99, Name: "seed", AutoProvision: true})
	require.NoError(t, err)

	rec := &SessionRecord{UserID: result.User.ID, WorkspaceID: result.Workspace.ID, Role: role}
	require.NoError(t, sessions.Create(context.Background(), rec))
	return &http.Cookie{Name: "atrium_session", Value: rec.ID}
}

func TestProviderRoutesRequireAuth(t *testing.T) {
	_, router, _ := newHandlersFixture(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/sso/providers", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestProviderRoutesRequireManageWorkspace(t *testing.T) {
	handlers, router, sessions := newHandlersFixture(t)
	cookie := signedInCookie(t, handlers, sessions, auth.RoleMember)

	req := httptest.NewRequest("GET", "/sso/providers", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateProviderValidation(t *testing.T) {
	handlers, router, sessions := newHandlersFixture(t)
	cookie := signedInCookie(t, handlers, sessions, auth.RoleOwner)

	post := func(body map[string]any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest("POST", "/sso/providers", bytes.NewReader(raw))
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := post(map[string]any{"provider_type": "oidc"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "missing name")

	rr = post(map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "missing type")

	rr = post(map[string]any{"name": "x", "provider_type": "oidc", "default_role": "czar"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "bad default role")

	// OIDC without a reachable issuer fails provider validation
	rr = post(map[string]any{
		"name": "x", "provider_type": "oidc",
		"oidc_config": map[string]any{"issuer_url": "https://127.0.0.1:1/nope"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCallbackRejectsMissingState(t *testing.T) {
	_, router, _ := newHandlersFixture(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/auth/sso/okta/callback?state=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing state cookie")
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	_, router, _ := newHandlersFixture(t)

	req := httptest.NewRequest("GET", "/auth/sso/okta/callback?state=attacker", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "expected"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid state parameter")
}

func TestSigninUnknownProvider(t *testing.T) {
	_, router, _ := newHandlersFixture(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/auth/sso/ghost/signin", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSignout(t *testing.T) {
	handlers, router, sessions := newHandlersFixture(t)
	cookie := signedInCookie(t, handlers, sessions, auth.RoleOwner)

	req := httptest.NewRequest("POST", "/auth/signout", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)

	// The session row is gone
	_, err := sessions.ResolveSession(context.Background(), cookie.Value)
	assert.Error(t, err)

	// The cookie is cleared
	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == "atrium_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "session cookie should be expired")
}

func TestSignoutWithoutSession(t *testing.T) {
	_, router, _ := newHandlersFixture(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/auth/signout", nil))
	assert.Equal(t, http.StatusFound, rr.Code)
}

func TestIsSafeReturnURL(t *testing.T) {
	assert.True(t, isSafeReturnURL("/dashboard"))
	assert.True(t, isSafeReturnURL("/w/acme/settings?tab=keys"))
	assert.False(t, isSafeReturnURL(""))
	assert.False(t, isSafeReturnURL("https://evil.example.com"))
	assert.False(t, isSafeReturnURL("//evil.example.com"))
	assert.False(t, isSafeReturnURL("/\\evil.example.com"))
}
