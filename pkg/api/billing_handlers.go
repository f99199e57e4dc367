package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/billing"
	"github.com/platinummonkey/atrium/pkg/httputil"
)

// getSubscription handles GET /api/internal/v1/billing/subscription
func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	sub, err := s.deps.Billing.GetSubscription(r.Context(), sess.Workspace.ID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, sub)
}

// listPlans handles GET /api/internal/v1/billing/plans
func (s *Server) listPlans(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	plans := billing.Catalog()
	return httputil.WriteSuccess(w, listResponse{Items: plans, Count: len(plans)})
}

// changePlan handles PUT /api/internal/v1/billing/plan
func (s *Server) changePlan(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	var req billing.ChangePlanRequest
	if err := parseBody(r, &req); err != nil {
		return err
	}

	sub, err := s.deps.Billing.ChangePlan(r.Context(), sess.Workspace.ID, req.Plan)
	if err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeSubscriptionChange, audit.ResourceTypeSubscription,
		strconv.FormatInt(sess.Workspace.ID, 10), &audit.ChangeDetails{
			After: map[string]interface{}{"plan": sub.Plan},
		}, "subscription plan changed")
	return httputil.WriteSuccess(w, sub)
}

// cancelSubscription handles POST /api/internal/v1/billing/cancel. The
// default cancels at period end; ?immediately=true downgrades now.
func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	immediately, err := httputil.ParseQueryBool(r, "immediately", false)
	if err != nil {
		return err
	}

	sub, err := s.deps.Billing.CancelSubscription(r.Context(), sess.Workspace.ID, immediately)
	if err != nil {
		return err
	}

	_ = audit.LogMutation(r.Context(), audit.EventTypeSubscriptionChange, audit.ResourceTypeSubscription,
		strconv.FormatInt(sess.Workspace.ID, 10), nil, "subscription canceled")
	return httputil.WriteSuccess(w, sub)
}

// billingProviderWebhook handles POST /api/webhooks/billing. The payment
// provider is not a session holder; the request authenticates with a
// signed payload instead, so this route bypasses the gate.
func (s *Server) billingProviderWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	err = s.deps.Billing.HandleProviderWebhook(r.Context(), payload, r.Header.Get("X-Signature"))
	if err != nil {
		switch apierr.CodeOf(err) {
		case apierr.CodeUnauthorized:
			httputil.WriteUnauthorized(w, apierr.MessageOf(err))
		case apierr.CodeInvalid:
			httputil.WriteBadRequest(w, apierr.MessageOf(err))
		case apierr.CodeNotFound:
			httputil.WriteNotFoundError(w, apierr.MessageOf(err))
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}
	_ = httputil.WriteSuccess(w, &MessageResponse{Message: "ok"})
}
