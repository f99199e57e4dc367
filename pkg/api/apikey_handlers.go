package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/webhooks"
)

// listAPIKeys handles GET /api/v1/api-keys. Only hashes are stored, so
// the listing carries prefixes for identification.
func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	keys, err := s.deps.APIKeys.List(r.Context(), sess.Workspace.ID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, listResponse{Items: keys, Count: len(keys)})
}

// createAPIKey handles POST /api/v1/api-keys. The plaintext token appears
// in this response and nowhere else.
func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var req CreateAPIKeyRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}
	if req.Name == "" {
		return apierr.Invalid("name is required")
	}

	if err := s.deps.Workspaces.CheckAPIKeyQuota(r.Context(), sess.Workspace.ID); err != nil {
		return err
	}

	key, token, err := s.deps.APIKeys.Create(r.Context(), sess.Workspace.ID, sess.User.ID, req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeAPIKeyCreate, audit.ResourceTypeAPIKey,
		strconv.FormatInt(key.ID, 10), nil, "API key created: "+key.Name)
	s.emitEvent(webhooks.EventAPIKeyCreated, sess.Workspace.ID, map[string]interface{}{
		"api_key_id": key.ID,
		"name":       key.Name,
	})
	return httputil.WriteCreated(w, &CreateAPIKeyResponse{Key: key, Token: token})
}

// deleteAPIKey handles DELETE /api/v1/api-keys/{id}. Any authenticated
// member of the workspace may revoke a key.
func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.deps.APIKeys.Delete(r.Context(), sess.Workspace.ID, id); err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeAPIKeyDelete, audit.ResourceTypeAPIKey,
		strconv.FormatInt(id, 10), nil, "API key deleted")
	s.emitEvent(webhooks.EventAPIKeyDeleted, sess.Workspace.ID, map[string]interface{}{
		"api_key_id": id,
	})
	return httputil.WriteSuccess(w, &MessageResponse{Message: "API key deleted successfully"})
}
