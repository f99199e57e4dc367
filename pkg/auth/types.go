package auth

import "time"

// User represents a dashboard user account
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Workspace is the session view of a tenant. The full record (settings,
// quotas, billing) lives in pkg/workspaces; the gate only needs identity
// and plan.
type Workspace struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Plan string `json:"plan"`
}

// Role represents workspace-level membership roles
type Role string

const (
	RoleOwner  Role = "owner"  // Full control including billing and deletion
	RoleAdmin  Role = "admin"  // Manage members, webhooks and keys
	RoleMember Role = "member" // Regular access, no management capabilities
)

// Valid reports whether the role is one of the built-in roles
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Capability is an opaque identifier for one granted action.
// Roles expand to capability sets (pkg/rbac); API keys carry
// capability scopes directly.
type Capability string

const (
	CapManageWorkspace Capability = "manage:workspace"
	CapManageMembers   Capability = "manage:members"
	CapManageWebhooks  Capability = "manage:webhooks"
	CapManageBilling   Capability = "manage:billing"
	CapManageAPIKeys   Capability = "manage:api-keys"
	CapViewAudit       Capability = "view:audit"

	// CapWildcard grants every capability. Only API keys carry it.
	CapWildcard Capability = "*"
)

// AllCapabilities lists every non-wildcard capability, for validation
// of API key scopes and role files.
func AllCapabilities() []Capability {
	return []Capability{
		CapManageWorkspace,
		CapManageMembers,
		CapManageWebhooks,
		CapManageBilling,
		CapManageAPIKeys,
		CapViewAudit,
	}
}

// KnownCapability reports whether c is the wildcard or a listed capability
func KnownCapability(c Capability) bool {
	if c == CapWildcard {
		return true
	}
	for _, known := range AllCapabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// Session is the per-request authenticated context: principal, active
// workspace and the expanded capability grants. Sessions are built by the
// resolver in pkg/middleware and destroyed at request end; handlers never
// resolve sessions themselves.
type Session struct {
	ID           string       `json:"id"`
	User         *User        `json:"user"`
	Workspace    *Workspace   `json:"workspace"`
	Role         Role         `json:"role,omitempty"`
	Capabilities []Capability `json:"capabilities"`
	APIKeyID     int64        `json:"api_key_id,omitempty"` // non-zero when resolved from a bearer key
	ExpiresAt    time.Time    `json:"expires_at"`
}

// Can reports whether the session grants the capability. The wildcard
// grant satisfies everything.
func (s *Session) Can(c Capability) bool {
	for _, granted := range s.Capabilities {
		if granted == CapWildcard || granted == c {
			return true
		}
	}
	return false
}

// CanAll reports whether the session grants every capability in the list.
// An empty list means any authenticated session is sufficient.
func (s *Session) CanAll(caps ...Capability) bool {
	for _, c := range caps {
		if !s.Can(c) {
			return false
		}
	}
	return true
}
