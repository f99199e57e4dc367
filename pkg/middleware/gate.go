package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/contextkeys"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/rbac"
)

// Handler is a request handler that runs behind the gate. It receives the
// resolved session and returns errors instead of writing error bodies;
// the gate owns HTTP error translation.
type Handler func(w http.ResponseWriter, r *http.Request, sess *auth.Session) error

// SessionResolver resolves a dashboard session cookie value into a session.
// Implemented by sso.SessionManager.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*auth.Session, error)
}

// KeyResolver resolves a bearer API key token into a session.
// Implemented by sso.KeySessionResolver over auth.APIKeyStore.
type KeyResolver interface {
	ResolveKey(ctx context.Context, token string) (*auth.Session, error)
}

// Gate is the single authorization choke point for resource routes. It
// resolves the caller (session cookie or bearer key), checks required
// capabilities, and translates handler errors into HTTP responses.
type Gate struct {
	sessions   SessionResolver
	keys       KeyResolver
	roles      *rbac.Registry
	logger     *observability.Logger
	cookieName string
	metrics    *observability.Metrics
}

// NewGate creates a gate over the given resolvers. Either resolver may be
// nil, in which case that credential source is rejected as unauthenticated.
func NewGate(sessions SessionResolver, keys KeyResolver, roles *rbac.Registry, logger *observability.Logger) *Gate {
	return &Gate{
		sessions:   sessions,
		keys:       keys,
		roles:      roles,
		logger:     logger,
		cookieName: "atrium_session",
	}
}

// SetCookieName overrides the session cookie name (config: ATRIUM_SESSION_COOKIE)
func (g *Gate) SetCookieName(name string) {
	if name != "" {
		g.cookieName = name
	}
}

// SetMetrics enables resolution and denial counters
func (g *Gate) SetMetrics(m *observability.Metrics) {
	g.metrics = m
}

// Wrap builds an http.HandlerFunc that admits only sessions holding every
// required capability. An empty capability list admits any authenticated
// session. The wrapped handler is never invoked on a denied request, so a
// denied mutation provably never runs.
func (g *Gate) Wrap(h Handler, required ...auth.Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.resolve(r)
		if err != nil {
			g.countDenial("unauthenticated")
			httputil.WriteUnauthorized(w, apierr.MessageOf(err))
			return
		}

		if !rbac.HasAll(sess.Capabilities, required) {
			g.countDenial("forbidden")
			httputil.WriteForbidden(w, "missing capability: "+missingCapability(sess, required))
			return
		}

		ctx := contextkeys.WithSession(r.Context(), sess)
		if carrier := contextkeys.CarrierFrom(ctx); carrier != nil {
			carrier.Session = sess
		}
		if sess.User != nil {
			userID := strconv.FormatInt(sess.User.ID, 10)
			ctx = contextkeys.WithUserID(ctx, userID)
			ctx = observability.WithUserID(ctx, userID)
		}

		if err := h(w, r.WithContext(ctx), sess); err != nil {
			g.writeError(ctx, w, err)
		}
	}
}

// WrapFunc adapts a plain http.HandlerFunc that still wants gating but
// handles its own responses (e.g. non-JSON endpoints).
func (g *Gate) WrapFunc(h http.HandlerFunc, required ...auth.Capability) http.HandlerFunc {
	return g.Wrap(func(w http.ResponseWriter, r *http.Request, _ *auth.Session) error {
		h(w, r)
		return nil
	}, required...)
}

// resolve inspects the request credentials in fixed order: a bearer key
// takes precedence over a session cookie when both are present.
func (g *Gate) resolve(r *http.Request) (*auth.Session, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return g.resolveBearer(r.Context(), header)
	}
	return g.resolveCookie(r)
}

func (g *Gate) resolveBearer(ctx context.Context, header string) (*auth.Session, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		g.countResolution("bearer", "malformed")
		return nil, apierr.Unauthorized("invalid authorization header format")
	}
	if g.keys == nil {
		g.countResolution("bearer", "rejected")
		return nil, apierr.Unauthorized("API key authentication is not enabled")
	}

	sess, err := g.keys.ResolveKey(ctx, parts[1])
	if err != nil {
		g.countResolution("bearer", "rejected")
		if apierr.CodeOf(err) == apierr.CodeUnauthorized {
			return nil, err
		}
		g.logError(ctx, err, "bearer key resolution failed")
		return nil, apierr.Unauthorized("invalid or expired API key")
	}

	g.countResolution("bearer", "ok")
	return sess, nil
}

func (g *Gate) resolveCookie(r *http.Request) (*auth.Session, error) {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		g.countResolution("cookie", "missing")
		return nil, apierr.Unauthorized("authentication required")
	}
	if g.sessions == nil {
		g.countResolution("cookie", "rejected")
		return nil, apierr.Unauthorized("session authentication is not enabled")
	}

	ctx := r.Context()
	sess, err := g.sessions.ResolveSession(ctx, cookie.Value)
	if err != nil {
		g.countResolution("cookie", "rejected")
		if apierr.CodeOf(err) == apierr.CodeUnauthorized {
			return nil, err
		}
		g.logError(ctx, err, "session resolution failed")
		return nil, apierr.Unauthorized("invalid or expired session")
	}

	// Cookie sessions carry a role; the role registry is authoritative for
	// what the role currently grants.
	if sess.Role != "" && g.roles != nil {
		sess.Capabilities = g.roles.Expand(sess.Role)
	}

	g.countResolution("cookie", "ok")
	return sess, nil
}

// writeError is the single apierr-to-HTTP translation point. Internal
// errors are logged with the request ID and collapsed to a generic body.
func (g *Gate) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := apierr.CodeOf(err)
	if code == apierr.CodeInternal {
		g.logError(ctx, err, "handler error")
	}
	httputil.WriteErrorMessage(w, StatusOf(code), apierr.MessageOf(err))
}

// StatusOf maps an error code to its HTTP status
func StatusOf(code apierr.Code) int {
	switch code {
	case apierr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apierr.CodeForbidden:
		return http.StatusForbidden
	case apierr.CodeNotFound:
		return http.StatusNotFound
	case apierr.CodeInvalid:
		return http.StatusBadRequest
	case apierr.CodeConflict:
		return http.StatusConflict
	case apierr.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// SessionFrom extracts the gate-resolved session from a request context.
// Returns nil outside the gate (e.g. on public routes).
func SessionFrom(ctx context.Context) *auth.Session {
	sess, _ := ctx.Value(contextkeys.SessionKey).(*auth.Session)
	return sess
}

func missingCapability(sess *auth.Session, required []auth.Capability) string {
	for _, c := range required {
		if !sess.Can(c) {
			return string(c)
		}
	}
	return ""
}

func (g *Gate) countResolution(source, outcome string) {
	if g.metrics != nil {
		g.metrics.SessionResolutionsTotal.WithLabelValues(source, outcome).Inc()
	}
}

func (g *Gate) countDenial(reason string) {
	if g.metrics != nil {
		g.metrics.GateDenialsTotal.WithLabelValues(reason).Inc()
	}
}

func (g *Gate) logError(ctx context.Context, err error, message string) {
	if g.logger == nil {
		return
	}
	logger := observability.UpdateLoggerWithTraceContext(ctx, g.logger)
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	logger.WithError(err).Error(message)
}
