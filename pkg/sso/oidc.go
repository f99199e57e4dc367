package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider implements OpenID Connect SSO
type OIDCProvider struct {
	config       *ProviderConfig
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider creates a new OIDC provider
func NewOIDCProvider(ctx context.Context, config *ProviderConfig) (*OIDCProvider, error) {
	if config.OIDCConfig == nil {
		return nil, fmt.Errorf("OIDC config is required")
	}

	// Discover OIDC provider
	provider, err := oidc.NewProvider(ctx, config.OIDCConfig.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifierConfig := &oidc.Config{
		ClientID:        config.OIDCConfig.ClientID,
		SkipIssuerCheck: config.OIDCConfig.SkipIssuerCheck,
	}
	verifier := provider.Verifier(verifierConfig)

	oauth2Config := &oauth2.Config{
		ClientID:     config.OIDCConfig.ClientID,
		ClientSecret: config.OIDCConfig.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.OIDCConfig.RedirectURL,
		Scopes:       config.OIDCConfig.Scopes,
	}

	return &OIDCProvider{
		config:       config,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// GetType returns the provider type
func (p *OIDCProvider) GetType() ProviderType {
	return ProviderTypeOIDC
}

// GetName returns the provider name
func (p *OIDCProvider) GetName() ProviderName {
	return p.config.ProviderName
}

// InitiateLogin redirects to the OIDC authorization endpoint
func (p *OIDCProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL := p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleCallback processes the OIDC callback: exchanges the code, verifies
// the ID token and maps claims onto an Identity.
func (p *OIDCProvider) HandleCallback(w http.ResponseWriter, r *http.Request) (*Identity, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	ctx := r.Context()
	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	identity := &Identity{
		ProviderID:   p.config.ID,
		ProviderName: p.config.Name,
		Attributes:   make(map[string]string),
	}

	// Keep all string claims as raw attributes
	for k, v := range claims {
		if str, ok := v.(string); ok {
			identity.Attributes[k] = str
		}
	}

	identity.ExternalID = getStringValue(claims, p.config.AttributeMapping.UserID)
	identity.Email = getStringValue(claims, p.config.AttributeMapping.Email)
	identity.FullName = getStringValue(claims, p.config.AttributeMapping.FullName)
	identity.FirstName = getStringValue(claims, p.config.AttributeMapping.FirstName)
	identity.LastName = getStringValue(claims, p.config.AttributeMapping.LastName)

	if p.config.AttributeMapping.Groups != "" {
		identity.Groups = getArrayValue(claims, p.config.AttributeMapping.Groups)
	}

	// Fetch additional user info if endpoint is configured
	if p.config.OIDCConfig.UserinfoEndpoint != "" {
		userInfo, err := p.fetchUserInfo(ctx, oauth2Token)
		if err == nil {
			for k, v := range userInfo {
				if str, ok := v.(string); ok {
					if _, exists := identity.Attributes[k]; !exists {
						identity.Attributes[k] = str
					}
				}
			}

			if email := getStringValue(userInfo, "email"); email != "" {
				identity.Email = email
			}
			if groups := getArrayValue(userInfo, p.config.AttributeMapping.Groups); len(groups) > 0 {
				identity.Groups = groups
			}
		}
	}

	// Use subject claim as fallback for user ID
	if identity.ExternalID == "" {
		identity.ExternalID = idToken.Subject
	}

	if identity.ExternalID == "" {
		return nil, fmt.Errorf("missing user ID in OIDC token")
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("missing email in OIDC token")
	}

	return identity, nil
}

// fetchUserInfo fetches additional user information from userinfo endpoint
func (p *OIDCProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]interface{}, error) {
	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, err
	}

	var claims map[string]interface{}
	if err := userInfo.Claims(&claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// Logout handles OIDC logout. RP-initiated logout via end_session_endpoint
// is not implemented; the local session is revoked by the caller.
func (p *OIDCProvider) Logout(w http.ResponseWriter, r *http.Request, sessionIndex string) error {
	return nil
}

// ValidateConfig validates the OIDC configuration
func (p *OIDCProvider) ValidateConfig() error {
	if p.config.OIDCConfig == nil {
		return fmt.Errorf("OIDC config is required")
	}

	cfg := p.config.OIDCConfig

	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("scopes are required")
	}

	// Verify "openid" scope is present
	hasOpenID := false
	for _, scope := range cfg.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("'openid' scope is required for OIDC")
	}

	return nil
}

// getStringValue extracts a string claim by name
func getStringValue(claims map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// getArrayValue extracts a multi-valued claim by name
func getArrayValue(claims map[string]interface{}, key string) []string {
	if key == "" {
		return nil
	}
	raw, ok := claims[key]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}
