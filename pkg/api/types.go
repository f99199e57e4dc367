package api

import (
	"time"

	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/webhooks"
)

// MeResponse describes the authenticated caller
type MeResponse struct {
	User         *auth.User        `json:"user"`
	Workspace    *auth.Workspace   `json:"workspace"`
	Role         auth.Role         `json:"role,omitempty"`
	Capabilities []auth.Capability `json:"capabilities"`
}

// MessageResponse is the body for mutations that return no resource
type MessageResponse struct {
	Message string `json:"message"`
}

// InvitationStatusRequest moves a pending invitation to a terminal state
type InvitationStatusRequest struct {
	Status string `json:"status"`
}

// AcceptInvitationRequest joins the caller to the inviting workspace
type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// UpdateMemberRoleRequest changes a member's role
type UpdateMemberRoleRequest struct {
	Role auth.Role `json:"role"`
}

// CreateWebhookRequest registers a destination
type CreateWebhookRequest struct {
	URL         string               `json:"url"`
	Description string               `json:"description,omitempty"`
	Events      []webhooks.EventType `json:"events"`
	Format      webhooks.Format      `json:"format,omitempty"`
}

// CreateAPIKeyRequest mints a bearer key for the session workspace
type CreateAPIKeyRequest struct {
	Name      string            `json:"name"`
	Scopes    []auth.Capability `json:"scopes,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// CreateAPIKeyResponse carries the plaintext token exactly once
type CreateAPIKeyResponse struct {
	Key   *auth.APIKey `json:"key"`
	Token string       `json:"token"`
}

// listResponse is the uniform wrapper for collection endpoints
type listResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}
