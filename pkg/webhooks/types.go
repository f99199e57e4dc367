package webhooks

import (
	"strings"
	"time"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventWorkspaceCreated EventType = "workspace.created"
	EventWorkspaceUpdated EventType = "workspace.updated"
	EventWorkspaceDeleted EventType = "workspace.deleted"

	EventMemberAdded       EventType = "member.added"
	EventMemberRoleChanged EventType = "member.role_changed"
	EventMemberRemoved     EventType = "member.removed"

	EventInvitationCreated EventType = "invitation.created"
	EventInvitationAccepted EventType = "invitation.accepted"
	EventInvitationRevoked  EventType = "invitation.revoked"

	EventAPIKeyCreated EventType = "apikey.created"
	EventAPIKeyDeleted EventType = "apikey.deleted"

	EventWebhookCreated EventType = "webhook.created"
	EventWebhookUpdated EventType = "webhook.updated"
	EventWebhookDeleted EventType = "webhook.deleted"
	EventWebhookTest    EventType = "webhook.test"
)

// Event represents a webhook event scoped to one workspace
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	WorkspaceID int64                  `json:"workspace_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Format selects the payload shape sent to a destination
type Format string

const (
	FormatJSON  Format = "json"
	FormatSlack Format = "slack"
	FormatTeams Format = "teams"
)

// Valid reports whether the format is one of the supported formats
func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatSlack, FormatTeams:
		return true
	}
	return false
}

// Destination represents a registered webhook endpoint owned by a
// workspace. The secret signs outgoing payloads and is returned only on
// creation and rotation.
type Destination struct {
	ID          int64       `json:"id"`
	WorkspaceID int64       `json:"workspace_id"`
	URL         string      `json:"url"`
	Description string      `json:"description,omitempty"`
	Events      []EventType `json:"events"`
	Secret      string      `json:"secret,omitempty"`
	Format      Format      `json:"format"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Matches reports whether the destination subscribes to the event type.
// Subscriptions are exact types, family wildcards ("member.*") or the
// global wildcard "*".
func (d *Destination) Matches(t EventType) bool {
	for _, pattern := range d.Events {
		if pattern == "*" || pattern == t {
			return true
		}
		if p := string(pattern); strings.HasSuffix(p, ".*") &&
			strings.HasPrefix(string(t), p[:len(p)-1]) {
			return true
		}
	}
	return false
}

// UpdateDestinationRequest represents a partial destination update
type UpdateDestinationRequest struct {
	URL          *string     `json:"url,omitempty"`
	Description  *string     `json:"description,omitempty"`
	Events       []EventType `json:"events,omitempty"`
	Format       *Format     `json:"format,omitempty"`
	Active       *bool       `json:"active,omitempty"`
	RotateSecret bool        `json:"rotate_secret,omitempty"`
}

// DeliveryStatus represents the status of a webhook delivery
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// Delivery represents one delivery attempt chain for an event to a
// destination. The payload is retained so retries resend exactly what the
// first attempt signed.
type Delivery struct {
	ID            string         `json:"id"`
	DestinationID int64          `json:"destination_id"`
	WorkspaceID   int64          `json:"workspace_id"`
	EventID       string         `json:"event_id"`
	EventType     EventType      `json:"event_type"`
	URL           string         `json:"url"`
	Payload       []byte         `json:"-"`
	Status        DeliveryStatus `json:"status"`
	StatusCode    int            `json:"status_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Attempts      int            `json:"attempts"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	DurationMS    int64          `json:"duration_ms,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}
