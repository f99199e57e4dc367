package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/billing"
	"github.com/platinummonkey/atrium/pkg/config"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/middleware"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/sso"
	"github.com/platinummonkey/atrium/pkg/swagger"
	"github.com/platinummonkey/atrium/pkg/usage"
	"github.com/platinummonkey/atrium/pkg/webhooks"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// Deps carries the constructed components the server wires together.
// Optional fields may be nil; their routes or middleware are skipped.
type Deps struct {
	Config *config.Config
	Logger *observability.Logger

	Gate       *middleware.Gate
	Workspaces *workspaces.PostgresService
	Webhooks   *webhooks.Store
	Deliveries *webhooks.DeliveryStore
	Dispatcher *webhooks.Dispatcher
	APIKeys    *auth.APIKeyStore
	Billing    billing.Service
	AuditStore audit.Store
	SSO        *sso.Handlers

	// Optional.
	Metrics     *observability.Metrics
	AuditLog    audit.Logger
	Usage       *usage.Recorder
	Cache       WorkspaceCache
	Sessions    SessionRevoker
	RateLimiter func(http.Handler) http.Handler
	Tracing     bool
}

// SessionRevoker drops a member's dashboard sessions when their
// membership goes away. Implemented by sso.SessionManager; with a nil
// revoker the stale rows sit until expiry, but they can no longer
// resolve because the resolver requires a live membership.
type SessionRevoker interface {
	RevokeAllForMember(ctx context.Context, userID, workspaceID int64) (int64, error)
}

// WorkspaceCache is a read-through cache over workspace lookups.
// Implemented by postgres.WorkspaceCache; nil means every read hits the
// database.
type WorkspaceCache interface {
	Get(ctx context.Context, id int64) (*workspaces.Workspace, error)
	Invalidate(ctx context.Context, ws *workspaces.Workspace) error
}

// Server assembles the HTTP surface: the middleware chain, the session
// gate, and every resource route.
type Server struct {
	deps   Deps
	router *mux.Router
}

// NewServer builds the router. Call Handler for the serving chain.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, router: mux.NewRouter()}
	s.routes()
	return s
}

// Router exposes the bare router for tests that bypass the outer chain
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler wraps the router in the middleware chain. Order matters:
// request IDs come first so every later stage can log them; recovery
// sits inside logging so panics still produce a request log line; audit
// and usage run innermost, next to the gate, so they see the resolved
// session.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router

	if s.deps.Usage != nil {
		h = usage.NewMiddleware(s.deps.Usage).Handler(h)
	}
	if s.deps.AuditLog != nil {
		h = audit.NewMiddleware(s.deps.AuditLog, false).Handler(h)
	}
	if s.deps.Tracing {
		h = otelhttp.NewHandler(h, "atrium")
	}
	if s.deps.Metrics != nil {
		h = observability.HTTPMetricsMiddleware(s.deps.Metrics)(h)
	}
	if s.deps.RateLimiter != nil {
		h = s.deps.RateLimiter(h)
	}

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(s.deps.Config.Server.AllowedOrigins),
		httputil.MaxBytesMiddleware(s.deps.Config.Server.MaxBodyBytes),
	)
	return chain(h)
}

func (s *Server) routes() {
	gate := s.deps.Gate

	// Authentication flows and provider management.
	if s.deps.SSO != nil {
		s.deps.SSO.RegisterRoutes(s.router, gate)
	}

	// OpenAPI document.
	swagger.NewHandlers().RegisterRoutes(s.router)

	internal := s.router.PathPrefix("/api/internal/v1").Subrouter()

	internal.Handle("/me", gate.Wrap(s.me)).Methods("GET")

	// Workspaces.
	internal.Handle("/workspaces", gate.Wrap(s.listWorkspaces)).Methods("GET")
	internal.Handle("/workspaces", gate.Wrap(s.createWorkspace)).Methods("POST")
	internal.Handle("/workspace", gate.Wrap(s.getWorkspace)).Methods("GET")
	internal.Handle("/workspace", gate.Wrap(s.updateWorkspace, auth.CapManageWorkspace)).Methods("PUT")
	internal.Handle("/workspace", gate.Wrap(s.deleteWorkspace, auth.CapManageWorkspace)).Methods("DELETE")

	// Members.
	internal.Handle("/members", gate.Wrap(s.listMembers)).Methods("GET")
	internal.Handle("/members/{id:[0-9]+}/role", gate.Wrap(s.updateMemberRole, auth.CapManageMembers)).Methods("PUT")
	internal.Handle("/members/{id:[0-9]+}", gate.Wrap(s.removeMember, auth.CapManageMembers)).Methods("DELETE")

	// Invitations.
	internal.Handle("/invitations", gate.Wrap(s.listInvitations)).Methods("GET")
	internal.Handle("/invitations", gate.Wrap(s.createInvitation, auth.CapManageMembers)).Methods("POST")
	internal.Handle("/invitations/{id:[0-9]+}/status", gate.Wrap(s.updateInvitationStatus, auth.CapManageMembers)).Methods("PUT")
	internal.Handle("/invitations/accept", gate.Wrap(s.acceptInvitation)).Methods("POST")

	// Webhook destinations.
	internal.Handle("/webhooks", gate.Wrap(s.listWebhooks)).Methods("GET")
	internal.Handle("/webhooks", gate.Wrap(s.createWebhook, auth.CapManageWebhooks)).Methods("POST")
	internal.Handle("/webhooks/{id:[0-9]+}", gate.Wrap(s.getWebhook)).Methods("GET")
	internal.Handle("/webhooks/{id:[0-9]+}", gate.Wrap(s.updateWebhook, auth.CapManageWebhooks)).Methods("PATCH")
	internal.Handle("/webhooks/{id:[0-9]+}", gate.Wrap(s.deleteWebhook, auth.CapManageWebhooks)).Methods("DELETE")
	internal.Handle("/webhooks/{id:[0-9]+}/test", gate.Wrap(s.testWebhook, auth.CapManageWebhooks)).Methods("POST")
	internal.Handle("/webhooks/{id:[0-9]+}/deliveries", gate.Wrap(s.listWebhookDeliveries)).Methods("GET")
	internal.Handle("/webhooks/{id:[0-9]+}/stats", gate.Wrap(s.getWebhookStats)).Methods("GET")

	// Audit trail.
	if s.deps.AuditStore != nil {
		auditHandlers := audit.NewHandlers(s.deps.AuditStore)
		internal.Handle("/audit/events", gate.Wrap(auditHandlers.ListEvents, auth.CapViewAudit)).Methods("GET")
		internal.Handle("/audit/events/{id:[0-9]+}", gate.Wrap(auditHandlers.GetEvent, auth.CapViewAudit)).Methods("GET")
		internal.Handle("/audit/export", gate.Wrap(auditHandlers.ExportEvents, auth.CapViewAudit)).Methods("GET")
		internal.Handle("/audit/stats", gate.Wrap(auditHandlers.GetStats, auth.CapViewAudit)).Methods("GET")
	}

	// Billing.
	if s.deps.Billing != nil {
		internal.Handle("/billing/subscription", gate.Wrap(s.getSubscription)).Methods("GET")
		internal.Handle("/billing/plans", gate.Wrap(s.listPlans)).Methods("GET")
		internal.Handle("/billing/plan", gate.Wrap(s.changePlan, auth.CapManageBilling)).Methods("PUT")
		internal.Handle("/billing/cancel", gate.Wrap(s.cancelSubscription, auth.CapManageBilling)).Methods("POST")

		// Provider callback; authenticated by payload signature, not session.
		s.router.HandleFunc("/api/webhooks/billing", s.billingProviderWebhook).Methods("POST")
	}

	// Programmatic API keys live on the public v1 surface.
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Handle("/api-keys", gate.Wrap(s.listAPIKeys)).Methods("GET")
	v1.Handle("/api-keys", gate.Wrap(s.createAPIKey, auth.CapManageAPIKeys)).Methods("POST")
	v1.Handle("/api-keys/{id:[0-9]+}", gate.Wrap(s.deleteAPIKey)).Methods("DELETE")
}

// me handles GET /api/internal/v1/me
func (s *Server) me(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	return httputil.WriteSuccess(w, &MeResponse{
		User:         sess.User,
		Workspace:    sess.Workspace,
		Role:         sess.Role,
		Capabilities: sess.Capabilities,
	})
}
