package sso

import (
	"time"

	"github.com/platinummonkey/atrium/pkg/auth"
)

// ProviderType represents the SSO provider protocol
type ProviderType string

const (
	ProviderTypeSAML ProviderType = "saml"
	ProviderTypeOIDC ProviderType = "oidc"
)

// ProviderName represents the identity provider vendor
type ProviderName string

const (
	ProviderAzureAD     ProviderName = "azuread"
	ProviderOkta        ProviderName = "okta"
	ProviderGoogle      ProviderName = "google"
	ProviderGenericSAML ProviderName = "generic_saml"
	ProviderGenericOIDC ProviderName = "generic_oidc"
)

// ProviderConfig represents SSO provider configuration
type ProviderConfig struct {
	ID               int64        `json:"id"`
	Name             string       `json:"name"` // Unique name for this provider instance
	ProviderType     ProviderType `json:"provider_type"`
	ProviderName     ProviderName `json:"provider_name"`
	Enabled          bool         `json:"enabled"`
	AutoProvision    bool         `json:"auto_provision"` // JIT user provisioning
	DefaultRole      auth.Role    `json:"default_role"`   // Role for users with no group match
	GroupMapping     []GroupMap   `json:"group_mapping,omitempty"`
	SAMLConfig       *SAMLConfig  `json:"saml_config,omitempty"`
	OIDCConfig       *OIDCConfig  `json:"oidc_config,omitempty"`
	AttributeMapping AttributeMap `json:"attribute_mapping"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// SAMLConfig holds SAML 2.0 configuration
type SAMLConfig struct {
	EntityID            string   `json:"entity_id"`
	SSOURL              string   `json:"sso_url"`
	SLOUrl              string   `json:"slo_url,omitempty"` // Single Logout URL
	Certificate         string   `json:"certificate"`       // PEM encoded certificate
	PrivateKey          string   `json:"-"`                 // Never expose private key in JSON
	MetadataURL         string   `json:"metadata_url,omitempty"`
	SignRequests        bool     `json:"sign_requests"`
	ForceAuthn          bool     `json:"force_authn"`
	AllowIDPInitiated   bool     `json:"allow_idp_initiated"`
	NameIDFormat        string   `json:"name_id_format,omitempty"`
	DefaultRedirectURL  string   `json:"default_redirect_url"`
	AudienceRestriction []string `json:"audience_restriction,omitempty"`
}

// OIDCConfig holds OpenID Connect configuration
type OIDCConfig struct {
	ClientID         string   `json:"client_id"`
	ClientSecret     string   `json:"-"` // Never expose secret in JSON
	IssuerURL        string   `json:"issuer_url"` // Discovery endpoint
	RedirectURL      string   `json:"redirect_url"`
	Scopes           []string `json:"scopes"`
	SkipIssuerCheck  bool     `json:"skip_issuer_check,omitempty"`
	UserinfoEndpoint string   `json:"userinfo_endpoint,omitempty"`
}

// AttributeMap defines how identity provider attributes map to user fields
type AttributeMap struct {
	UserID    string `json:"user_id"` // Unique user identifier
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Groups    string `json:"groups,omitempty"` // Attribute containing group memberships
}

// GroupMap maps identity provider groups to workspace roles
type GroupMap struct {
	Group string    `json:"group"` // Group name from identity provider
	Role  auth.Role `json:"role"`  // Workspace role (owner, admin, member)
}

// Identity represents the authenticated principal returned by a provider
// callback, before provisioning.
type Identity struct {
	ExternalID   string            `json:"external_id"` // Unique ID from provider
	Email        string            `json:"email"`
	FullName     string            `json:"full_name,omitempty"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	Groups       []string          `json:"groups,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"` // Raw attributes
	ProviderID   int64             `json:"provider_id"`
	ProviderName string            `json:"provider_name"`
	SessionIndex string            `json:"session_index,omitempty"` // For SAML logout
}

// UserMapping links a provider identity to an Atrium user
type UserMapping struct {
	ID             int64     `json:"id"`
	ProviderID     int64     `json:"provider_id"`
	ExternalUserID string    `json:"external_user_id"`
	UserID         int64     `json:"user_id"`
	LastLoginAt    time.Time `json:"last_login_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionRecord is a server-side dashboard session row. The cookie carries
// only the opaque ID; everything else is resolved from this record on each
// request.
type SessionRecord struct {
	ID               string    `json:"id"`
	UserID           int64     `json:"user_id"`
	WorkspaceID      int64     `json:"workspace_id"`
	Role             auth.Role `json:"role"`
	ProviderID       int64     `json:"provider_id,omitempty"`
	SAMLSessionIndex string    `json:"saml_session_index,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}
