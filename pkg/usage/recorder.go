package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/async"
)

// Recorder persists usage events and keeps the monthly counters the quota
// checks read. Both writes share one transaction so a counter never
// drifts from its events.
type Recorder struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewRecorder creates a usage recorder
func NewRecorder(db *sql.DB, logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Recorder{db: db, logger: logger, now: time.Now}
}

// Record persists one usage event and bumps the workspace's monthly
// counter
func (r *Recorder) Record(ctx context.Context, event *Event) error {
	if !event.Kind.Valid() {
		return fmt.Errorf("unknown usage kind %q", event.Kind)
	}
	if event.WorkspaceID == 0 {
		return fmt.Errorf("workspace is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO usage_events (workspace_id, kind, user_id, api_key_id, method, path, status_code, duration_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, event.WorkspaceID, event.Kind, event.UserID, event.APIKeyID,
		event.Method, event.Path, event.StatusCode, event.DurationMS, event.OccurredAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	if err := r.bumpCounter(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit()
}

// bumpCounter upserts the monthly counter row for the event's period
func (r *Recorder) bumpCounter(ctx context.Context, tx *sql.Tx, event *Event) error {
	start, end := PeriodBounds(event.OccurredAt)

	apiDelta, webhookDelta := 0, 0
	switch event.Kind {
	case KindAPIRequest:
		apiDelta = 1
	case KindWebhookDelivery:
		webhookDelta = 1
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO usage_counters (workspace_id, period_start, period_end, api_requests_count, webhook_deliveries_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workspace_id, period_start) DO UPDATE SET
			api_requests_count = usage_counters.api_requests_count + $4,
			webhook_deliveries_count = usage_counters.webhook_deliveries_count + $5
	`, event.WorkspaceID, start, end, apiDelta, webhookDelta)
	if err != nil {
		return fmt.Errorf("failed to bump usage counter: %w", err)
	}
	return nil
}

// RecordAsync records without blocking the caller. Request paths use this
// so metering never adds latency; failures are logged and dropped.
func (r *Recorder) RecordAsync(event *Event) {
	async.SafeGo(context.Background(), 10*time.Second, "usage record", func(ctx context.Context) error {
		if err := r.Record(ctx, event); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"workspace_id": event.WorkspaceID,
				"kind":         event.Kind,
			}).Warn("failed to record usage event")
		}
		return nil
	})
}

// CurrentCounters returns the counter row covering now, zeroed when the
// workspace has no usage this period.
func (r *Recorder) CurrentCounters(ctx context.Context, workspaceID int64) (*Counters, error) {
	start, end := PeriodBounds(r.now())
	c := &Counters{WorkspaceID: workspaceID, PeriodStart: start, PeriodEnd: end}

	err := r.db.QueryRowContext(ctx, `
		SELECT api_requests_count, webhook_deliveries_count
		FROM usage_counters
		WHERE workspace_id = $1 AND period_start = $2
	`, workspaceID, start).Scan(&c.APIRequests, &c.WebhookDeliveries)
	if err == sql.ErrNoRows {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counters: %w", err)
	}
	return c, nil
}
