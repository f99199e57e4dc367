package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/webhooks"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// emitEvent dispatches a webhook event for the workspace's destinations.
// Delivery is asynchronous and never blocks the response.
func (s *Server) emitEvent(t webhooks.EventType, workspaceID int64, data map[string]interface{}) {
	if s.deps.Dispatcher == nil {
		return
	}
	s.deps.Dispatcher.DispatchAsync(&webhooks.Event{
		Type:        t,
		WorkspaceID: workspaceID,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	})
}

// listWorkspaces handles GET /api/internal/v1/workspaces; it returns every
// workspace the caller belongs to, not just the session workspace.
func (s *Server) listWorkspaces(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	list, err := s.deps.Workspaces.ListForUser(r.Context(), sess.User.ID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, listResponse{Items: list, Count: len(list)})
}

// createWorkspace handles POST /api/internal/v1/workspaces. Any
// authenticated user may create a workspace; they become its owner.
func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var req workspaces.CreateWorkspaceRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	ws, err := s.deps.Workspaces.Create(r.Context(), &req, sess.User.ID)
	if err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeWorkspaceCreate, audit.ResourceTypeWorkspace,
		strconv.FormatInt(ws.ID, 10), nil, "workspace created")
	s.emitEvent(webhooks.EventWorkspaceCreated, ws.ID, map[string]interface{}{
		"workspace_id": ws.ID,
		"name":         ws.Name,
		"slug":         ws.Slug,
	})
	return httputil.WriteCreated(w, ws)
}

// getWorkspace handles GET /api/internal/v1/workspace. Reads go through
// the cache when one is wired.
func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var (
		ws  *workspaces.Workspace
		err error
	)
	if s.deps.Cache != nil {
		ws, err = s.deps.Cache.Get(r.Context(), sess.Workspace.ID)
	} else {
		ws, err = s.deps.Workspaces.Get(r.Context(), sess.Workspace.ID)
	}
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, ws)
}

// invalidateCache drops a workspace's cache entries after a mutation
func (s *Server) invalidateCache(ctx context.Context, ws *workspaces.Workspace) {
	if s.deps.Cache == nil || ws == nil {
		return
	}
	_ = s.deps.Cache.Invalidate(ctx, ws)
}

// updateWorkspace handles PUT /api/internal/v1/workspace
func (s *Server) updateWorkspace(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var req workspaces.UpdateWorkspaceRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	before, err := s.deps.Workspaces.Get(r.Context(), sess.Workspace.ID)
	if err != nil {
		return err
	}
	if err := s.deps.Workspaces.Update(r.Context(), sess.Workspace.ID, &req); err != nil {
		return err
	}
	after, err := s.deps.Workspaces.Get(r.Context(), sess.Workspace.ID)
	if err != nil {
		return err
	}

	s.invalidateCache(r.Context(), before)

	_ = audit.LogMutation(r.Context(), audit.EventTypeWorkspaceUpdate, audit.ResourceTypeWorkspace,
		strconv.FormatInt(after.ID, 10), &audit.ChangeDetails{
			Before: map[string]interface{}{"name": before.Name, "settings": before.Settings},
			After:  map[string]interface{}{"name": after.Name, "settings": after.Settings},
		}, "workspace updated")
	s.emitEvent(webhooks.EventWorkspaceUpdated, after.ID, map[string]interface{}{
		"workspace_id": after.ID,
		"name":         after.Name,
	})
	return httputil.WriteSuccess(w, after)
}

// deleteWorkspace handles DELETE /api/internal/v1/workspace. Rows in
// dependent tables cascade with the workspace.
func (s *Server) deleteWorkspace(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id := sess.Workspace.ID
	ws, err := s.deps.Workspaces.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if err := s.deps.Workspaces.Delete(r.Context(), id); err != nil {
		return err
	}
	s.invalidateCache(r.Context(), ws)

	_ = audit.LogMutation(r.Context(), audit.EventTypeWorkspaceDelete, audit.ResourceTypeWorkspace,
		strconv.FormatInt(id, 10), nil, "workspace deleted")
	return httputil.WriteSuccess(w, &MessageResponse{Message: "workspace deleted"})
}
