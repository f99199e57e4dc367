package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Rollup aggregates raw usage events into per-day workspace statistics
// and prunes old events. The janitor drives it.
type Rollup struct {
	db  *sql.DB
	now func() time.Time
}

// NewRollup creates a rollup over the usage tables
func NewRollup(db *sql.DB) *Rollup {
	return &Rollup{db: db, now: time.Now}
}

// RollupDaily recomputes the daily stats for every workspace active on
// the given day. Reruns overwrite, so the job is idempotent.
func (r *Rollup) RollupDaily(ctx context.Context, day time.Time) error {
	start, end := DayBounds(day)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_daily (workspace_id, date, api_requests, webhook_deliveries, error_count, avg_duration_ms, unique_users)
		SELECT
			workspace_id,
			$1,
			SUM(CASE WHEN kind = 'api_request' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = 'webhook_delivery' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END),
			COALESCE(CAST(AVG(duration_ms) AS INTEGER), 0),
			COUNT(DISTINCT user_id)
		FROM usage_events
		WHERE occurred_at >= $1 AND occurred_at < $2
		GROUP BY workspace_id
		ON CONFLICT (workspace_id, date) DO UPDATE SET
			api_requests = EXCLUDED.api_requests,
			webhook_deliveries = EXCLUDED.webhook_deliveries,
			error_count = EXCLUDED.error_count,
			avg_duration_ms = EXCLUDED.avg_duration_ms,
			unique_users = EXCLUDED.unique_users
	`, start, end)
	if err != nil {
		return fmt.Errorf("failed to roll up daily usage: %w", err)
	}
	return nil
}

// PruneEvents deletes raw events older than the retention window. Rolled
// up days and monthly counters are unaffected.
func (r *Rollup) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.now().UTC().Add(-retention)
	result, err := r.db.ExecContext(ctx, `DELETE FROM usage_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage events: %w", err)
	}
	return result.RowsAffected()
}

// DailyStats returns a workspace's rolled-up days in the range, oldest
// first
func (r *Rollup) DailyStats(ctx context.Context, workspaceID int64, from, to time.Time) ([]*DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT workspace_id, date, api_requests, webhook_deliveries, error_count, avg_duration_ms, unique_users
		FROM usage_daily
		WHERE workspace_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC
	`, workspaceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list daily usage: %w", err)
	}
	defer rows.Close()

	var stats []*DailyStat
	for rows.Next() {
		s := &DailyStat{}
		err := rows.Scan(&s.WorkspaceID, &s.Date, &s.APIRequests, &s.WebhookDeliveries,
			&s.ErrorCount, &s.AvgDurationMS, &s.UniqueUsers)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
