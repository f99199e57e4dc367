package workspaces

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/atrium/pkg/auth"
)

// Plan represents subscription plans
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether the plan is one of the known plans
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Status represents workspace status
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Workspace is the tenant record. The session view in pkg/auth carries a
// subset of these fields; this is the full record behind it.
type Workspace struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Plan      Plan           `json:"plan"`
	Status    Status         `json:"status"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionView converts the record to the slim shape sessions carry
func (w *Workspace) SessionView() *auth.Workspace {
	return &auth.Workspace{ID: w.ID, Slug: w.Slug, Name: w.Name, Plan: string(w.Plan)}
}

// Member represents a workspace member with user details joined in
type Member struct {
	WorkspaceID int64     `json:"workspace_id"`
	UserID      int64     `json:"user_id"`
	Role        auth.Role `json:"role"`
	InvitedBy   *int64    `json:"invited_by,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
}

// InvitationStatus represents the state of an invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

// ValidStatusTarget reports whether s is a status a caller may move a
// pending invitation to. Only accepted and revoked are reachable through
// the API; expired is set by the janitor.
func ValidStatusTarget(s InvitationStatus) bool {
	return s == InvitationAccepted || s == InvitationRevoked
}

// Invitation represents an invitation to join a workspace
type Invitation struct {
	ID          int64            `json:"id"`
	WorkspaceID int64            `json:"workspace_id"`
	Email       string           `json:"email"`
	Role        auth.Role        `json:"role"`
	Token       string           `json:"token,omitempty"`
	Status      InvitationStatus `json:"status"`
	InvitedBy   int64            `json:"invited_by"`
	InvitedAt   time.Time        `json:"invited_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
	AcceptedBy  *int64           `json:"accepted_by,omitempty"`
}

// CreateWorkspaceRequest represents a request to create a workspace
type CreateWorkspaceRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug,omitempty"`
	Plan     Plan           `json:"plan,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// UpdateWorkspaceRequest represents a partial workspace update
type UpdateWorkspaceRequest struct {
	Name     *string        `json:"name,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// InviteMemberRequest represents a request to invite a member
type InviteMemberRequest struct {
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

// QuotaExceededError carries the resource and numbers behind a quota
// denial. Services wrap it in a coded apierr so the gate answers 429.
type QuotaExceededError struct {
	Resource string
	Current  int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	return "quota exceeded for " + e.Resource
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// QuotaChecker defines the interface for checking plan quotas
type QuotaChecker interface {
	CheckMemberQuota(ctx context.Context, workspaceID int64) error
	CheckInvitationQuota(ctx context.Context, workspaceID int64) error
	CheckWebhookQuota(ctx context.Context, workspaceID int64) error
	CheckAPIKeyQuota(ctx context.Context, workspaceID int64) error
	CheckAPIRequestQuota(ctx context.Context, workspaceID int64) error
}

// Service defines the interface for workspace management
type Service interface {
	// Workspace CRUD
	Create(ctx context.Context, req *CreateWorkspaceRequest, ownerID int64) (*Workspace, error)
	Get(ctx context.Context, id int64) (*Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*Workspace, error)
	ListForUser(ctx context.Context, userID int64) ([]*Workspace, error)
	Update(ctx context.Context, id int64, updates *UpdateWorkspaceRequest) error
	SetPlan(ctx context.Context, id int64, plan Plan) error
	Delete(ctx context.Context, id int64) error

	// Member management
	ListMembers(ctx context.Context, workspaceID int64) ([]*Member, error)
	GetMember(ctx context.Context, workspaceID, userID int64) (*Member, error)
	AddMember(ctx context.Context, workspaceID, userID int64, role auth.Role, invitedBy *int64) error
	UpdateMemberRole(ctx context.Context, workspaceID, userID int64, role auth.Role) error
	RemoveMember(ctx context.Context, workspaceID, userID int64) error

	// Invitation management
	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error)
	UpdateInvitationStatus(ctx context.Context, workspaceID, id int64, status InvitationStatus) error
	AcceptInvitation(ctx context.Context, token string, userID int64) (*Invitation, error)
	ExpireInvitations(ctx context.Context) (int64, error)

	QuotaChecker
}
