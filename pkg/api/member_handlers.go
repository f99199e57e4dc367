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

// listMembers handles GET /api/internal/v1/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	members, err := s.deps.Workspaces.ListMembers(r.Context(), sess.Workspace.ID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, listResponse{Items: members, Count: len(members)})
}

// updateMemberRole handles PUT /api/internal/v1/members/{id}/role. The
// path id is the member's user id.
func (s *Server) updateMemberRole(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	userID, err := pathID(r)
	if err != nil {
		return err
	}
	var req UpdateMemberRoleRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	before, err := s.deps.Workspaces.GetMember(r.Context(), sess.Workspace.ID, userID)
	if err != nil {
		return err
	}
	if err := s.deps.Workspaces.UpdateMemberRole(r.Context(), sess.Workspace.ID, userID, req.Role); err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeMemberRoleChange, audit.ResourceTypeMember,
		strconv.FormatInt(userID, 10), &audit.ChangeDetails{
			Before: map[string]interface{}{"role": before.Role},
			After:  map[string]interface{}{"role": req.Role},
		}, "member role changed")
	s.emitEvent(webhooks.EventMemberRoleChanged, sess.Workspace.ID, map[string]interface{}{
		"user_id": userID,
		"role":    req.Role,
	})
	return httputil.WriteSuccess(w, &MessageResponse{Message: "member role updated"})
}

// removeMember handles DELETE /api/internal/v1/members/{id}. Members may
// not remove themselves; leaving a workspace is a signout concern, and
// the last owner must transfer ownership first.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	userID, err := pathID(r)
	if err != nil {
		return err
	}
	if userID == sess.User.ID {
		return apierr.Invalid("cannot remove yourself from the workspace")
	}

	if err := s.deps.Workspaces.RemoveMember(r.Context(), sess.Workspace.ID, userID); err != nil {
		return err
	}
	if s.deps.Sessions != nil {
		// The resolver already rejects sessions without a membership row;
		// this clears the dead rows instead of leaving them until expiry.
		_, _ = s.deps.Sessions.RevokeAllForMember(r.Context(), userID, sess.Workspace.ID)
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeMemberRemove, audit.ResourceTypeMember,
		strconv.FormatInt(userID, 10), nil, "member removed")
	s.emitEvent(webhooks.EventMemberRemoved, sess.Workspace.ID, map[string]interface{}{
		"user_id": userID,
	})
	return httputil.WriteSuccess(w, &MessageResponse{Message: "member removed"})
}
