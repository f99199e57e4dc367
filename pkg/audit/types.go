package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthSignin       EventType = "auth.signin"
	EventTypeAuthSignout      EventType = "auth.signout"
	EventTypeAuthSigninFailed EventType = "auth.signin_failed"
	EventTypeAuthDenied       EventType = "auth.denied"

	// Workspace events
	EventTypeWorkspaceCreate     EventType = "workspace.create"
	EventTypeWorkspaceUpdate     EventType = "workspace.update"
	EventTypeWorkspaceDelete     EventType = "workspace.delete"
	EventTypeWorkspacePlanChange EventType = "workspace.plan_change"

	// Membership events
	EventTypeMemberAdd        EventType = "member.add"
	EventTypeMemberRoleChange EventType = "member.role_change"
	EventTypeMemberRemove     EventType = "member.remove"

	// Invitation events
	EventTypeInvitationCreate EventType = "invitation.create"
	EventTypeInvitationAccept EventType = "invitation.accept"
	EventTypeInvitationRevoke EventType = "invitation.revoke"
	EventTypeInvitationExpire EventType = "invitation.expire"

	// Webhook configuration events
	EventTypeWebhookCreate EventType = "webhook.create"
	EventTypeWebhookUpdate EventType = "webhook.update"
	EventTypeWebhookDelete EventType = "webhook.delete"

	// API key events
	EventTypeAPIKeyCreate EventType = "apikey.create"
	EventTypeAPIKeyDelete EventType = "apikey.delete"

	// Billing events
	EventTypeSubscriptionChange  EventType = "subscription.change"
	EventTypeSubscriptionWebhook EventType = "subscription.webhook"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeWorkspace    ResourceType = "workspace"
	ResourceTypeMember       ResourceType = "member"
	ResourceTypeInvitation   ResourceType = "invitation"
	ResourceTypeWebhook      ResourceType = "webhook"
	ResourceTypeAPIKey       ResourceType = "api_key"
	ResourceTypeSession      ResourceType = "session"
	ResourceTypeSubscription ResourceType = "subscription"
	ResourceTypeUser         ResourceType = "user"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID      *int64 `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	WorkspaceID *int64 `json:"workspace_id,omitempty"`
	APIKeyID    *int64 `json:"api_key_id,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for querying audit logs. WorkspaceID is
// mandatory on API paths; the handlers force it to the session workspace.
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID      *int64
	Email       string
	WorkspaceID *int64

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	IPAddress string
	Method    string
	Path      string

	Limit  int
	Offset int

	// SortAscending orders oldest first; default is newest first
	SortAscending bool
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// Stats represents statistics about a workspace's audit trail
type Stats struct {
	TotalEvents    int64                 `json:"total_events"`
	EventsByType   map[EventType]int64   `json:"events_by_type"`
	EventsByStatus map[EventStatus]int64 `json:"events_by_status"`
	UniqueUsers    int64                 `json:"unique_users"`
	UniqueIPs      int64                 `json:"unique_ips"`
	FailedSignins  int64                 `json:"failed_signins"`
	AccessDenials  int64                 `json:"access_denials"`
	TimeRange      *TimeRange            `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit logs are kept and whether old
// rows are archived to object storage before deletion
type RetentionPolicy struct {
	RetentionDays  int
	ArchiveEnabled bool

	// ArchivePrefix is the object key prefix for archived batches
	ArchivePrefix string
}

// DefaultRetentionPolicy returns the default retention policy (90 days,
// archival on)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:  90,
		ArchiveEnabled: true,
		ArchivePrefix:  "audit",
	}
}
