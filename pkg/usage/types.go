package usage

import "time"

// EventKind identifies what consumed quota
type EventKind string

const (
	KindAPIRequest      EventKind = "api_request"
	KindWebhookDelivery EventKind = "webhook_delivery"
)

// Valid reports whether the kind is a known usage kind
func (k EventKind) Valid() bool {
	return k == KindAPIRequest || k == KindWebhookDelivery
}

// Event represents one metered action by a workspace
type Event struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Kind        EventKind `json:"kind"`
	UserID      *int64    `json:"user_id,omitempty"`
	APIKeyID    *int64    `json:"api_key_id,omitempty"`
	Method      string    `json:"method,omitempty"`
	Path        string    `json:"path,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Counters is the monthly rollup row read by the quota checks
type Counters struct {
	WorkspaceID       int64     `json:"workspace_id"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	APIRequests       int64     `json:"api_requests_count"`
	WebhookDeliveries int64     `json:"webhook_deliveries_count"`
}

// DailyStat aggregates one workspace-day of usage
type DailyStat struct {
	WorkspaceID       int64     `json:"workspace_id"`
	Date              time.Time `json:"date"`
	APIRequests       int64     `json:"api_requests"`
	WebhookDeliveries int64     `json:"webhook_deliveries"`
	ErrorCount        int64     `json:"error_count"`
	AvgDurationMS     int64     `json:"avg_duration_ms"`
	UniqueUsers       int64     `json:"unique_users"`
}

// PeriodBounds returns the UTC month boundaries containing t. Counter
// rows key on the period start.
func PeriodBounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// DayBounds returns the UTC day boundaries containing t
func DayBounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 0, 1)
	return start, end
}
