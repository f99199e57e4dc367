package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/webhooks"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// listInvitations handles GET /api/internal/v1/invitations
func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	invs, err := s.deps.Workspaces.ListInvitations(r.Context(), sess.Workspace.ID)
	if err != nil {
		return err
	}
	for _, inv := range invs {
		inv.Token = ""
	}
	return httputil.WriteSuccess(w, listResponse{Items: invs, Count: len(invs)})
}

// createInvitation handles POST /api/internal/v1/invitations. The
// invitation token is returned once so the caller can send the link; the
// list endpoint never exposes it.
func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var req workspaces.InviteMemberRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	if err := s.deps.Workspaces.CheckInvitationQuota(r.Context(), sess.Workspace.ID); err != nil {
		return err
	}
	if err := s.deps.Workspaces.CheckMemberQuota(r.Context(), sess.Workspace.ID); err != nil {
		return err
	}

	inv := &workspaces.Invitation{
		WorkspaceID: sess.Workspace.ID,
		Email:       req.Email,
		Role:        req.Role,
		InvitedBy:   sess.User.ID,
	}
	if err := s.deps.Workspaces.CreateInvitation(r.Context(), inv); err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeInvitationCreate, audit.ResourceTypeInvitation,
		strconv.FormatInt(inv.ID, 10), nil, "invitation created for "+inv.Email)
	s.emitEvent(webhooks.EventInvitationCreated, sess.Workspace.ID, map[string]interface{}{
		"invitation_id": inv.ID,
		"email":         inv.Email,
		"role":          inv.Role,
	})
	return httputil.WriteCreated(w, inv)
}

// updateInvitationStatus handles PUT /api/internal/v1/invitations/{id}/status.
// Callers may move a pending invitation to accepted or revoked; every
// other status is rejected before anything is written. Accepting joins
// the invited email's account, never the caller.
func (s *Server) updateInvitationStatus(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var req InvitationStatusRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	status := workspaces.InvitationStatus(req.Status)
	if !workspaces.ValidStatusTarget(status) {
		return apierr.Invalid("invalid invitation status %q", req.Status)
	}

	if err := s.deps.Workspaces.UpdateInvitationStatus(r.Context(), sess.Workspace.ID, id, status); err != nil {
		return err
	}

	eventType := audit.EventTypeInvitationAccept
	hookType := webhooks.EventInvitationAccepted
	if status == workspaces.InvitationRevoked {
		eventType = audit.EventTypeInvitationRevoke
		hookType = webhooks.EventInvitationRevoked
	}
	_ = audit.LogMutation(r.Context(), eventType, audit.ResourceTypeInvitation,
		strconv.FormatInt(id, 10), nil, "invitation "+req.Status)
	s.emitEvent(hookType, sess.Workspace.ID, map[string]interface{}{
		"invitation_id": id,
		"status":        req.Status,
	})
	return httputil.WriteSuccess(w, &MessageResponse{Message: "invitation " + req.Status})
}

// acceptInvitation handles POST /api/internal/v1/invitations/accept. Any
// authenticated user may redeem a token; membership lands in the inviting
// workspace, which need not be the session workspace.
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var req AcceptInvitationRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}
	if req.Token == "" {
		return apierr.Invalid("token is required")
	}

	inv, err := s.deps.Workspaces.AcceptInvitation(r.Context(), req.Token, sess.User.ID)
	if err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeInvitationAccept, audit.ResourceTypeInvitation,
		strconv.FormatInt(inv.ID, 10), nil, "invitation accepted")
	s.emitEvent(webhooks.EventInvitationAccepted, inv.WorkspaceID, map[string]interface{}{
		"invitation_id": inv.ID,
		"user_id":       sess.User.ID,
		"role":          inv.Role,
	})
	s.emitEvent(webhooks.EventMemberAdded, inv.WorkspaceID, map[string]interface{}{
		"user_id": sess.User.ID,
		"role":    inv.Role,
	})
	return httputil.WriteSuccess(w, inv)
}
