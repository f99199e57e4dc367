package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/api"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

func TestInviteCreate(t *testing.T) {
	var gotReq workspaces.InviteMemberRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/internal/v1/invitations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(workspaces.Invitation{
			ID: 3, Email: gotReq.Email, Role: gotReq.Role, Token: "inv_token_once",
		})
	}))
	defer srv.Close()

	require.NoError(t, runInvite([]string{"create", "-server", srv.URL, "-token", "atr_admin", "-email", "dev@example.com", "-role", "viewer"}))
	assert.Equal(t, "dev@example.com", gotReq.Email)
	assert.EqualValues(t, "viewer", gotReq.Role)
}

func TestInviteRevokeSendsTerminalStatus(t *testing.T) {
	var gotPath string
	var gotReq api.InvitationStatusRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]string{"message": "invitation revoked"})
	}))
	defer srv.Close()

	require.NoError(t, runInvite([]string{"revoke", "-server", srv.URL, "-token", "atr_admin", "-id", "3"}))
	assert.Equal(t, "/api/internal/v1/invitations/3/status", gotPath)
	assert.Equal(t, "revoked", gotReq.Status)
}

func TestInviteCreateRequiresEmail(t *testing.T) {
	err := runInvite([]string{"create", "-server", "http://localhost:1", "-token", "atr_admin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-email")
}
