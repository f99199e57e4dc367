package webhooks

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeliveryStore persists delivery attempts in postgres
type DeliveryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDeliveryStore creates a new delivery store
func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db, now: time.Now}
}

const deliveryColumns = `id, destination_id, workspace_id, event_id, event_type, url, payload, status, status_code, error_message, attempts, next_retry_at, duration_ms, created_at, completed_at`

// Create inserts a delivery row
func (s *DeliveryStore) Create(ctx context.Context, d *Delivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, destination_id, workspace_id, event_id, event_type, url, payload, status, status_code, error_message, attempts, next_retry_at, duration_ms, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, d.ID, d.DestinationID, d.WorkspaceID, d.EventID, d.EventType, d.URL, string(d.Payload),
		d.Status, d.StatusCode, d.ErrorMessage, d.Attempts, d.NextRetryAt, d.DurationMS,
		d.CreatedAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}
	return nil
}

// Update persists the outcome of an attempt
func (s *DeliveryStore) Update(ctx context.Context, d *Delivery) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = $1, status_code = $2, error_message = $3, attempts = $4,
		    next_retry_at = $5, duration_ms = $6, completed_at = $7
		WHERE id = $8
	`, d.Status, d.StatusCode, d.ErrorMessage, d.Attempts, d.NextRetryAt,
		d.DurationMS, d.CompletedAt, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	return nil
}

// ListByDestination lists recent deliveries for a destination in the
// workspace, newest first
func (s *DeliveryStore) ListByDestination(ctx context.Context, workspaceID, destinationID int64, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE workspace_id = $1 AND destination_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, workspaceID, destinationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var list []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// GetPendingRetries returns deliveries whose next retry is due
func (s *DeliveryStore) GetPendingRetries(ctx context.Context, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at ASC
		LIMIT $3
	`, DeliveryStatusRetrying, s.now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending retries: %w", err)
	}
	defer rows.Close()

	var list []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// PruneCompleted deletes terminal deliveries older than the retention
// window. The janitor runs this on a schedule.
func (s *DeliveryStore) PruneCompleted(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_deliveries
		WHERE status IN ($1, $2) AND completed_at < $3
	`, DeliveryStatusSuccess, DeliveryStatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	return result.RowsAffected()
}

// Stats aggregates delivery outcomes for a destination
type Stats struct {
	DestinationID int64   `json:"destination_id"`
	Total         int64   `json:"total"`
	Successful    int64   `json:"successful"`
	Failed        int64   `json:"failed"`
	Retrying      int64   `json:"retrying"`
	SuccessRate   float64 `json:"success_rate"`
}

// GetStats returns delivery statistics for a destination
func (s *DeliveryStore) GetStats(ctx context.Context, workspaceID, destinationID int64) (*Stats, error) {
	stats := &Stats{DestinationID: destinationID}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM webhook_deliveries
		WHERE workspace_id = $1 AND destination_id = $2
		GROUP BY status
	`, workspaceID, destinationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status DeliveryStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.Total += count
		switch status {
		case DeliveryStatusSuccess:
			stats.Successful = count
		case DeliveryStatusFailed:
			stats.Failed = count
		case DeliveryStatusRetrying:
			stats.Retrying = count
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, rows.Err()
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	d := &Delivery{}
	var payload string
	var nextRetryAt, completedAt sql.NullTime
	err := row.Scan(&d.ID, &d.DestinationID, &d.WorkspaceID, &d.EventID, &d.EventType,
		&d.URL, &payload, &d.Status, &d.StatusCode, &d.ErrorMessage, &d.Attempts,
		&nextRetryAt, &d.DurationMS, &d.CreatedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}
	d.Payload = []byte(payload)
	if nextRetryAt.Valid {
		d.NextRetryAt = &nextRetryAt.Time
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return d, nil
}
