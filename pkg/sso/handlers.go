package sso

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/middleware"
	"github.com/platinummonkey/atrium/pkg/observability"
)

const (
	stateCookie     = "atrium_sso_state"
	providerCookie  = "atrium_sso_provider"
	returnURLCookie = "atrium_sso_return"

	// Temporary cookies live just long enough for the IdP round trip
	flowCookieMaxAge = 600
)

// Handlers serves the SSO authentication flows and provider management
type Handlers struct {
	storage      *Storage
	factory      *ProviderFactory
	provisioner  *Provisioner
	sessions     *SessionManager
	logger       *observability.Logger
	cookieName   string
	cookieSecure bool
}

// NewHandlers creates the SSO handlers
func NewHandlers(db *sql.DB, baseURL string, sessions *SessionManager, logger *observability.Logger) *Handlers {
	return &Handlers{
		storage:      NewStorage(db),
		factory:      NewProviderFactory(baseURL),
		provisioner:  NewProvisioner(db),
		sessions:     sessions,
		logger:       logger,
		cookieName:   "atrium_session",
		cookieSecure: true,
	}
}

// SetCookie overrides the session cookie name and secure flag from config
func (h *Handlers) SetCookie(name string, secure bool) {
	if name != "" {
		h.cookieName = name
	}
	h.cookieSecure = secure
}

// Storage exposes provider storage for admin tooling
func (h *Handlers) Storage() *Storage {
	return h.storage
}

// RegisterRoutes registers SSO routes. Authentication flows are public;
// provider management requires workspace management rights.
func (h *Handlers) RegisterRoutes(router *mux.Router, gate *middleware.Gate) {
	router.HandleFunc("/auth/sso/{provider}/signin", h.initiateSignin).Methods("GET")
	router.HandleFunc("/auth/sso/{provider}/callback", h.handleCallback).Methods("GET", "POST")
	router.HandleFunc("/auth/signout", h.signout).Methods("GET", "POST")
	router.HandleFunc("/sso/metadata/{provider}", h.getSAMLMetadata).Methods("GET")

	router.Handle("/sso/providers", gate.Wrap(h.listProviders, auth.CapManageWorkspace)).Methods("GET")
	router.Handle("/sso/providers", gate.Wrap(h.createProvider, auth.CapManageWorkspace)).Methods("POST")
	router.Handle("/sso/providers/{name}", gate.Wrap(h.getProvider, auth.CapManageWorkspace)).Methods("GET")
	router.Handle("/sso/providers/{name}", gate.Wrap(h.updateProvider, auth.CapManageWorkspace)).Methods("PUT")
	router.Handle("/sso/providers/{name}", gate.Wrap(h.deleteProvider, auth.CapManageWorkspace)).Methods("DELETE")
}

// listProviders handles GET /sso/providers
func (h *Handlers) listProviders(w http.ResponseWriter, r *http.Request, _ *auth.Session) error {
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	providers, err := h.storage.ListProviders(r.Context(), enabledOnly)
	if err != nil {
		return err
	}

	for _, p := range providers {
		sanitizeProvider(p)
	}
	return httputil.WriteSuccess(w, providers)
}

// createProvider handles POST /sso/providers
func (h *Handlers) createProvider(w http.ResponseWriter, r *http.Request, _ *auth.Session) error {
	var config ProviderConfig
	if err := httputil.ParseJSON(r, &config); err != nil {
		return apierr.Invalid("invalid request body")
	}

	if config.Name == "" {
		return apierr.Invalid("name is required")
	}
	if config.ProviderType == "" {
		return apierr.Invalid("provider_type is required")
	}
	if config.DefaultRole != "" && !config.DefaultRole.Valid() {
		return apierr.Invalid("invalid default role: %s", config.DefaultRole)
	}

	exists, err := h.storage.ProviderExists(r.Context(), config.Name)
	if err != nil {
		return err
	}
	if exists {
		return apierr.Conflict("provider with this name already exists")
	}

	if err := h.validateProviderConfig(&config); err != nil {
		return err
	}

	if err := h.storage.CreateProvider(r.Context(), &config); err != nil {
		return err
	}

	sanitizeProvider(&config)
	return httputil.WriteCreated(w, config)
}

// getProvider handles GET /sso/providers/{name}
func (h *Handlers) getProvider(w http.ResponseWriter, r *http.Request, _ *auth.Session) error {
	config, err := h.storage.GetProvider(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		return err
	}

	sanitizeProvider(config)
	return httputil.WriteSuccess(w, config)
}

// updateProvider handles PUT /sso/providers/{name}
func (h *Handlers) updateProvider(w http.ResponseWriter, r *http.Request, _ *auth.Session) error {
	existing, err := h.storage.GetProvider(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		return err
	}

	var config ProviderConfig
	if err := httputil.ParseJSON(r, &config); err != nil {
		return apierr.Invalid("invalid request body")
	}

	// Identity fields are immutable
	config.ID = existing.ID
	config.Name = existing.Name

	if err := h.validateProviderConfig(&config); err != nil {
		return err
	}

	if err := h.storage.UpdateProvider(r.Context(), &config); err != nil {
		return err
	}

	sanitizeProvider(&config)
	return httputil.WriteSuccess(w, config)
}

// deleteProvider handles DELETE /sso/providers/{name}
func (h *Handlers) deleteProvider(w http.ResponseWriter, r *http.Request, _ *auth.Session) error {
	if err := h.storage.DeleteProvider(r.Context(), mux.Vars(r)["name"]); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// validateProviderConfig instantiates the provider to surface config errors
func (h *Handlers) validateProviderConfig(config *ProviderConfig) error {
	// Disabled providers can't be instantiated; validate a shadow copy.
	check := *config
	check.Enabled = true

	provider, err := h.factory.CreateProvider(&check)
	if err != nil {
		return apierr.Invalid("invalid provider config: %v", err)
	}
	if err := provider.ValidateConfig(); err != nil {
		return apierr.Invalid("invalid provider config: %v", err)
	}
	return nil
}

// initiateSignin handles GET /auth/sso/{provider}/signin
func (h *Handlers) initiateSignin(w http.ResponseWriter, r *http.Request) {
	providerName := mux.Vars(r)["provider"]

	config, err := h.storage.GetProvider(r.Context(), providerName)
	if err != nil {
		h.writePublicError(w, err)
		return
	}
	if !config.Enabled {
		httputil.WriteForbidden(w, "provider is disabled")
		return
	}

	provider, err := h.factory.CreateProvider(config)
	if err != nil {
		h.logFlowError(r, err, "failed to create provider")
		httputil.WriteInternalError(w, fmt.Errorf("internal server error"))
		return
	}

	state, err := randomState()
	if err != nil {
		httputil.WriteInternalError(w, fmt.Errorf("internal server error"))
		return
	}

	h.setFlowCookie(w, stateCookie, state)
	h.setFlowCookie(w, providerCookie, providerName)

	if returnURL := r.URL.Query().Get("return_url"); isSafeReturnURL(returnURL) {
		h.setFlowCookie(w, returnURLCookie, returnURL)
	}

	if err := provider.InitiateLogin(w, r, state); err != nil {
		h.logFlowError(r, err, "failed to initiate SSO login")
		httputil.WriteInternalError(w, fmt.Errorf("internal server error"))
	}
}

// handleCallback handles GET/POST /auth/sso/{provider}/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	providerName := mux.Vars(r)["provider"]

	// The state round trip ties the callback to the browser that started
	// the flow.
	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		httputil.WriteBadRequest(w, "missing state cookie")
		return
	}

	stateParam := r.URL.Query().Get("state")
	if r.Method == http.MethodPost {
		stateParam = r.FormValue("RelayState") // SAML uses RelayState
	}
	if stateParam == "" || stateParam != cookie.Value {
		httputil.WriteBadRequest(w, "invalid state parameter")
		return
	}

	config, err := h.storage.GetProvider(r.Context(), providerName)
	if err != nil {
		h.writePublicError(w, err)
		return
	}

	provider, err := h.factory.CreateProvider(config)
	if err != nil {
		h.logFlowError(r, err, "failed to create provider")
		httputil.WriteInternalError(w, fmt.Errorf("internal server error"))
		return
	}

	identity, err := provider.HandleCallback(w, r)
	if err != nil {
		h.logFlowError(r, err, "SSO callback rejected")
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}

	result, err := h.provisioner.Provision(r.Context(), identity, config)
	if err != nil {
		h.logFlowError(r, err, "failed to provision user")
		h.writePublicError(w, err)
		return
	}

	rec := &SessionRecord{
		UserID:           result.User.ID,
		WorkspaceID:      result.Workspace.ID,
		Role:             result.Role,
		ProviderID:       config.ID,
		SAMLSessionIndex: identity.SessionIndex,
	}
	if err := h.sessions.Create(r.Context(), rec); err != nil {
		h.logFlowError(r, err, "failed to create session")
		httputil.WriteInternalError(w, fmt.Errorf("internal server error"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    rec.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  rec.ExpiresAt,
	})

	h.clearFlowCookie(w, stateCookie)
	h.clearFlowCookie(w, providerCookie)

	returnURL := "/"
	if returnCookie, err := r.Cookie(returnURLCookie); err == nil && isSafeReturnURL(returnCookie.Value) {
		returnURL = returnCookie.Value
		h.clearFlowCookie(w, returnURLCookie)
	}

	http.Redirect(w, r, returnURL, http.StatusFound)
}

// signout handles GET/POST /auth/signout
func (h *Handlers) signout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	rec, err := h.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		// Session already gone, just clear the cookie
		h.clearSessionCookie(w)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if err := h.sessions.Revoke(r.Context(), rec.ID); err != nil {
		h.logFlowError(r, err, "failed to revoke session")
	}
	h.clearSessionCookie(w)

	// Propagate logout to the IdP when it supports it
	if rec.ProviderID != 0 {
		config, err := h.storage.GetProviderByID(r.Context(), rec.ProviderID)
		if err == nil && config.Enabled {
			if provider, err := h.factory.CreateProvider(config); err == nil {
				if err := provider.Logout(w, r, rec.SAMLSessionIndex); err == nil {
					return
				}
			}
		}
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// getSAMLMetadata handles GET /sso/metadata/{provider}
func (h *Handlers) getSAMLMetadata(w http.ResponseWriter, r *http.Request) {
	config, err := h.storage.GetProvider(r.Context(), mux.Vars(r)["provider"])
	if err != nil {
		h.writePublicError(w, err)
		return
	}

	if config.ProviderType != ProviderTypeSAML {
		httputil.WriteBadRequest(w, "provider is not SAML")
		return
	}

	provider, err := h.factory.CreateProvider(config)
	if err != nil {
		h.logFlowError(r, err, "failed to create provider")
		httputil.WriteInternalError(w, fmt.Errorf("internal server error"))
		return
	}

	samlProvider, ok := provider.(*SAMLProvider)
	if !ok {
		httputil.WriteInternalError(w, fmt.Errorf("provider is not SAML"))
		return
	}

	metadata, err := samlProvider.GetMetadata()
	if err != nil {
		h.logFlowError(r, err, "failed to build metadata")
		httputil.WriteInternalError(w, fmt.Errorf("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write(metadata)
}

// writePublicError translates coded errors on the public (pre-gate) routes
func (h *Handlers) writePublicError(w http.ResponseWriter, err error) {
	httputil.WriteErrorMessage(w, middleware.StatusOf(apierr.CodeOf(err)), apierr.MessageOf(err))
}

func (h *Handlers) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   flowCookieMaxAge,
	})
}

func (h *Handlers) clearFlowCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, MaxAge: -1, Path: "/"})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: h.cookieName, MaxAge: -1, Path: "/", HttpOnly: true})
}

func (h *Handlers) logFlowError(r *http.Request, err error, message string) {
	if h.logger == nil {
		return
	}
	h.logger.WithError(err).WithField("path", r.URL.Path).Error(message)
}

// sanitizeProvider removes sensitive material from provider config
func sanitizeProvider(config *ProviderConfig) {
	if config.SAMLConfig != nil {
		config.SAMLConfig.PrivateKey = ""
	}
	if config.OIDCConfig != nil {
		config.OIDCConfig.ClientSecret = ""
	}
}

// randomState generates the anti-forgery state for a signin flow
func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// isSafeReturnURL allows only same-site relative redirect targets
func isSafeReturnURL(u string) bool {
	if u == "" || !strings.HasPrefix(u, "/") {
		return false
	}
	// "//host" and "/\host" are protocol-relative escapes
	return !strings.HasPrefix(u, "//") && !strings.HasPrefix(u, "/\\")
}
