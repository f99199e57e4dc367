package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// DBLogger persists audit events in postgres
type DBLogger struct {
	db  *sql.DB
	now func() time.Time
}

// NewDBLogger creates a database-backed audit logger. The audit_logs
// table ships with the migrations; EnsureSchema exists for standalone use.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db, now: time.Now}, nil
}

// EnsureSchema creates the audit_logs table and its indexes if missing.
// Postgres only; tests and migrations provide their own DDL.
func (l *DBLogger) EnsureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		email VARCHAR(255) NOT NULL DEFAULT '',
		workspace_id BIGINT,
		api_key_id BIGINT,
		resource_type VARCHAR(50) NOT NULL DEFAULT '',
		resource_id VARCHAR(255) NOT NULL DEFAULT '',
		ip_address VARCHAR(45) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id VARCHAR(100) NOT NULL DEFAULT '',
		method VARCHAR(10) NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		changes JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_workspace ON audit_logs(workspace_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	`)
	return err
}

const auditColumns = `id, timestamp, event_type, status, user_id, email, workspace_id, api_key_id, resource_type, resource_id, ip_address, user_agent, request_id, method, path, status_code, message, error_message, metadata, changes`

// Log inserts one audit event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON, changesJSON []byte
	var err error

	if len(event.Metadata) > 0 {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	err = l.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, email, workspace_id, api_key_id,
			resource_type, resource_id,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.Email, event.WorkspaceID, event.APIKeyID,
		event.ResourceType, event.ResourceID,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, nullableJSON(metadataJSON), nullableJSON(changesJSON),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Search queries audit logs by filter, newest first unless the filter
// asks for ascending order
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	addClause := func(clause string, value interface{}) {
		query += fmt.Sprintf(" AND %s = $%d", clause, argPos)
		args = append(args, value)
		argPos++
	}

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argPos)
		args = append(args, *filter.StartTime)
		argPos++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argPos)
		args = append(args, *filter.EndTime)
		argPos++
	}
	if filter.UserID != nil {
		addClause("user_id", *filter.UserID)
	}
	if filter.Email != "" {
		addClause("email", filter.Email)
	}
	if filter.WorkspaceID != nil {
		addClause("workspace_id", *filter.WorkspaceID)
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = fmt.Sprintf("$%d", argPos)
			args = append(args, string(et))
			argPos++
		}
		query += fmt.Sprintf(" AND event_type IN (%s)", strings.Join(placeholders, ", "))
	}
	if filter.Status != nil {
		addClause("status", string(*filter.Status))
	}
	if filter.ResourceType != "" {
		addClause("resource_type", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		addClause("resource_id", filter.ResourceID)
	}
	if filter.IPAddress != "" {
		addClause("ip_address", filter.IPAddress)
	}
	if filter.Method != "" {
		addClause("method", filter.Method)
	}
	if filter.Path != "" {
		query += fmt.Sprintf(" AND path LIKE $%d", argPos)
		args = append(args, "%"+filter.Path+"%")
		argPos++
	}

	if filter.SortAscending {
		query += " ORDER BY timestamp ASC, id ASC"
	} else {
		query += " ORDER BY timestamp DESC, id DESC"
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
		argPos++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Get retrieves one audit event scoped to a workspace
func (l *DBLogger) Get(ctx context.Context, workspaceID, id int64) (*Event, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+auditColumns+` FROM audit_logs WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("audit event not found")
	}
	return event, err
}

// GetStats aggregates a workspace's audit trail over an optional time range
func (l *DBLogger) GetStats(ctx context.Context, workspaceID int64, startTime, endTime *time.Time) (*Stats, error) {
	stats := &Stats{
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
	}

	where := "WHERE workspace_id = $1"
	args := []interface{}{workspaceID}
	argPos := 2

	if startTime != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", argPos)
		args = append(args, *startTime)
		argPos++
		stats.TimeRange = &TimeRange{Start: *startTime}
	}
	if endTime != nil {
		where += fmt.Sprintf(" AND timestamp <= $%d", argPos)
		args = append(args, *endTime)
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}

	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, "SELECT event_type, COUNT(*) FROM audit_logs "+where+" GROUP BY event_type", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventType EventType
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats.EventsByType[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = l.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM audit_logs "+where+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status EventStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.EventsByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = l.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT user_id) FROM audit_logs "+where+" AND user_id IS NOT NULL", args...,
	).Scan(&stats.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique users: %w", err)
	}

	err = l.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT ip_address) FROM audit_logs "+where+" AND ip_address != ''", args...,
	).Scan(&stats.UniqueIPs)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique IPs: %w", err)
	}

	err = l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_logs "+where+" AND event_type = 'auth.signin_failed'", args...,
	).Scan(&stats.FailedSignins)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed signins: %w", err)
	}

	err = l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_logs "+where+" AND status = 'denied'", args...,
	).Scan(&stats.AccessDenials)
	if err != nil {
		return nil, fmt.Errorf("failed to count denials: %w", err)
	}

	return stats, nil
}

// DeleteBefore removes audit rows older than the cutoff and returns the
// count. The archiver exports first when archival is enabled.
func (l *DBLogger) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the database handle is shared
func (l *DBLogger) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	event := &Event{}
	var metadataJSON, changesJSON sql.NullString

	err := row.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.UserID, &event.Email, &event.WorkspaceID, &event.APIKeyID,
		&event.ResourceType, &event.ResourceID,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path, &event.StatusCode,
		&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if changesJSON.Valid && changesJSON.String != "" {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal([]byte(changesJSON.String), event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}
	return event, nil
}
