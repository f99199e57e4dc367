package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/webhooks"
)

// deliveryHistoryLimit caps the deliveries listing per destination
const deliveryHistoryLimit = 100

// listWebhooks handles GET /api/internal/v1/webhooks. Signing secrets are
// only shown at creation or rotation, never on reads.
func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	dests, err := s.deps.Webhooks.ListDestinations(r.Context(), sess.Workspace.ID)
	if err != nil {
		return err
	}
	for _, d := range dests {
		d.Secret = ""
	}
	return httputil.WriteSuccess(w, listResponse{Items: dests, Count: len(dests)})
}

// createWebhook handles POST /api/internal/v1/webhooks. The response is
// the only place the signing secret appears in full.
func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var req CreateWebhookRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	if err := s.deps.Workspaces.CheckWebhookQuota(r.Context(), sess.Workspace.ID); err != nil {
		return err
	}

	dest := &webhooks.Destination{
		WorkspaceID: sess.Workspace.ID,
		URL:         req.URL,
		Description: req.Description,
		Events:      req.Events,
		Format:      req.Format,
	}
	if err := s.deps.Webhooks.CreateDestination(r.Context(), dest); err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeWebhookCreate, audit.ResourceTypeWebhook,
		strconv.FormatInt(dest.ID, 10), nil, "webhook destination created")
	s.emitEvent(webhooks.EventWebhookCreated, sess.Workspace.ID, map[string]interface{}{
		"webhook_id": dest.ID,
		"url":        dest.URL,
	})
	return httputil.WriteCreated(w, dest)
}

// getWebhook handles GET /api/internal/v1/webhooks/{id}
func (s *Server) getWebhook(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	dest, err := s.deps.Webhooks.GetDestination(r.Context(), sess.Workspace.ID, id)
	if err != nil {
		return err
	}
	dest.Secret = ""
	return httputil.WriteSuccess(w, dest)
}

// updateWebhook handles PATCH /api/internal/v1/webhooks/{id}. When the
// request rotates the secret the response carries the new one.
func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	var req webhooks.UpdateDestinationRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	dest, err := s.deps.Webhooks.UpdateDestination(r.Context(), sess.Workspace.ID, id, &req)
	if err != nil {
		return err
	}
	if !req.RotateSecret {
		dest.Secret = ""
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeWebhookUpdate, audit.ResourceTypeWebhook,
		strconv.FormatInt(id, 10), nil, "webhook destination updated")
	s.emitEvent(webhooks.EventWebhookUpdated, sess.Workspace.ID, map[string]interface{}{
		"webhook_id": id,
	})
	return httputil.WriteSuccess(w, dest)
}

// deleteWebhook handles DELETE /api/internal/v1/webhooks/{id}
func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := s.deps.Webhooks.DeleteDestination(r.Context(), sess.Workspace.ID, id); err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeWebhookDelete, audit.ResourceTypeWebhook,
		strconv.FormatInt(id, 10), nil, "webhook destination deleted")
	s.emitEvent(webhooks.EventWebhookDeleted, sess.Workspace.ID, map[string]interface{}{
		"webhook_id": id,
	})
	return httputil.WriteSuccess(w, &MessageResponse{Message: "webhook deleted"})
}

// testWebhook handles POST /api/internal/v1/webhooks/{id}/test. It fires a
// synthetic event at the one destination so operators can verify their
// endpoint and signature handling.
func (s *Server) testWebhook(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	// Existence check scoped to the workspace before dispatching.
	if _, err := s.deps.Webhooks.GetDestination(r.Context(), sess.Workspace.ID, id); err != nil {
		return err
	}

	s.emitEvent(webhooks.EventWebhookTest, sess.Workspace.ID, map[string]interface{}{
		"webhook_id":   id,
		"triggered_by": sess.User.Email,
	})
	return httputil.WriteSuccess(w, &MessageResponse{Message: "test event dispatched"})
}

// listWebhookDeliveries handles GET /api/internal/v1/webhooks/{id}/deliveries
func (s *Server) listWebhookDeliveries(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	limit, err := httputil.ParseQueryInt(r, "limit", deliveryHistoryLimit)
	if err != nil {
		return err
	}

	deliveries, err := s.deps.Deliveries.ListByDestination(r.Context(), sess.Workspace.ID, id, limit)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, listResponse{Items: deliveries, Count: len(deliveries)})
}

// getWebhookStats handles GET /api/internal/v1/webhooks/{id}/stats
func (s *Server) getWebhookStats(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	stats, err := s.deps.Deliveries.GetStats(r.Context(), sess.Workspace.ID, id)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, stats)
}
