package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one versioned schema change. Versions are applied in
// order, each in its own transaction, and recorded in schema_migrations.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrate applies all pending migrations on the primary
func Migrate(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		applied++
	}

	if applied > 0 {
		logger.WithFields(logrus.Fields{
			"applied": applied,
			"version": Migrations[len(Migrations)-1].Version,
		}).Info("schema migrations applied")
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// Migrations is the ordered schema history. Append only; never edit an
// applied migration.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "users and workspaces",
		SQL: `
		CREATE TABLE users (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			last_login_at TIMESTAMP WITH TIME ZONE
		);
		CREATE TABLE workspaces (
			id BIGSERIAL PRIMARY KEY,
			slug VARCHAR(100) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			plan VARCHAR(20) NOT NULL DEFAULT 'free',
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			settings JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE TABLE workspace_members (
			workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role VARCHAR(20) NOT NULL,
			invited_by BIGINT REFERENCES users(id),
			joined_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (workspace_id, user_id)
		);
		CREATE INDEX idx_members_user ON workspace_members(user_id);
		`,
	},
	{
		Version: 2,
		Name:    "invitations",
		SQL: `
		CREATE TABLE invitations (
			id BIGSERIAL PRIMARY KEY,
			workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			email VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL,
			token VARCHAR(100) NOT NULL UNIQUE,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			invited_by BIGINT NOT NULL REFERENCES users(id),
			invited_at TIMESTAMP WITH TIME ZONE NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			accepted_at TIMESTAMP WITH TIME ZONE,
			accepted_by BIGINT REFERENCES users(id),
			UNIQUE (workspace_id, email)
		);
		CREATE INDEX idx_invitations_status ON invitations(workspace_id, status);
		CREATE INDEX idx_invitations_expiry ON invitations(status, expires_at);
		`,
	},
	{
		Version: 3,
		Name:    "sessions and sso",
		SQL: `
		CREATE TABLE sso_providers (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			provider_type VARCHAR(20) NOT NULL,
			provider_name VARCHAR(100) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			auto_provision BOOLEAN NOT NULL DEFAULT true,
			default_role VARCHAR(20) NOT NULL DEFAULT 'member',
			saml_config JSONB,
			oidc_config JSONB,
			group_mapping JSONB,
			attribute_mapping JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE TABLE sso_user_mappings (
			id BIGSERIAL PRIMARY KEY,
			provider_id BIGINT NOT NULL REFERENCES sso_providers(id) ON DELETE CASCADE,
			external_user_id VARCHAR(255) NOT NULL,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			last_login_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (provider_id, external_user_id)
		);
		CREATE TABLE sessions (
			id VARCHAR(100) PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			role VARCHAR(20) NOT NULL,
			provider_id BIGINT NOT NULL DEFAULT 0,
			saml_session_index VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX idx_sessions_expiry ON sessions(expires_at);
		CREATE INDEX idx_sessions_user ON sessions(user_id);
		`,
	},
	{
		Version: 4,
		Name:    "api keys",
		SQL: `
		CREATE TABLE api_keys (
			id BIGSERIAL PRIMARY KEY,
			workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			created_by BIGINT NOT NULL REFERENCES users(id),
			name VARCHAR(255) NOT NULL,
			token_hash VARCHAR(64) NOT NULL UNIQUE,
			token_prefix VARCHAR(16) NOT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			last_used_at TIMESTAMP WITH TIME ZONE,
			expires_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX idx_api_keys_workspace ON api_keys(workspace_id);
		`,
	},
	{
		Version: 5,
		Name:    "webhooks",
		SQL: `
		CREATE TABLE webhook_destinations (
			id BIGSERIAL PRIMARY KEY,
			workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			events TEXT NOT NULL,
			secret VARCHAR(100) NOT NULL,
			format VARCHAR(20) NOT NULL DEFAULT 'json',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX idx_webhook_destinations_workspace ON webhook_destinations(workspace_id);
		CREATE TABLE webhook_deliveries (
			id VARCHAR(64) PRIMARY KEY,
			destination_id BIGINT NOT NULL REFERENCES webhook_destinations(id) ON DELETE CASCADE,
			workspace_id BIGINT NOT NULL,
			event_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(100) NOT NULL,
			url TEXT NOT NULL,
			payload TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			next_retry_at TIMESTAMP WITH TIME ZONE,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE
		);
		CREATE INDEX idx_webhook_deliveries_retry ON webhook_deliveries(status, next_retry_at);
		CREATE INDEX idx_webhook_deliveries_workspace ON webhook_deliveries(workspace_id, created_at DESC);
		`,
	},
	{
		Version: 6,
		Name:    "audit logs",
		SQL: `
		CREATE TABLE audit_logs (
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
		CREATE INDEX idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
		CREATE INDEX idx_audit_logs_workspace ON audit_logs(workspace_id, timestamp DESC);
		CREATE INDEX idx_audit_logs_event_type ON audit_logs(event_type);
		CREATE INDEX idx_audit_logs_user_id ON audit_logs(user_id);
		`,
	},
	{
		Version: 7,
		Name:    "usage metering",
		SQL: `
		CREATE TABLE usage_events (
			id BIGSERIAL PRIMARY KEY,
			workspace_id BIGINT NOT NULL,
			kind VARCHAR(30) NOT NULL,
			user_id BIGINT,
			api_key_id BIGINT,
			method VARCHAR(10) NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX idx_usage_events_time ON usage_events(occurred_at);
		CREATE INDEX idx_usage_events_workspace ON usage_events(workspace_id, occurred_at);
		CREATE TABLE usage_counters (
			id BIGSERIAL PRIMARY KEY,
			workspace_id BIGINT NOT NULL,
			period_start TIMESTAMP WITH TIME ZONE NOT NULL,
			period_end TIMESTAMP WITH TIME ZONE NOT NULL,
			api_requests_count BIGINT NOT NULL DEFAULT 0,
			webhook_deliveries_count BIGINT NOT NULL DEFAULT 0,
			UNIQUE (workspace_id, period_start)
		);
		CREATE TABLE usage_daily (
			id BIGSERIAL PRIMARY KEY,
			workspace_id BIGINT NOT NULL,
			date TIMESTAMP WITH TIME ZONE NOT NULL,
			api_requests BIGINT NOT NULL DEFAULT 0,
			webhook_deliveries BIGINT NOT NULL DEFAULT 0,
			error_count BIGINT NOT NULL DEFAULT 0,
			avg_duration_ms BIGINT NOT NULL DEFAULT 0,
			unique_users BIGINT NOT NULL DEFAULT 0,
			UNIQUE (workspace_id, date)
		);
		`,
	},
	{
		Version: 8,
		Name:    "billing subscriptions",
		SQL: `
		CREATE TABLE subscriptions (
			id BIGSERIAL PRIMARY KEY,
			workspace_id BIGINT NOT NULL UNIQUE REFERENCES workspaces(id) ON DELETE CASCADE,
			plan VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			provider_customer_id VARCHAR(100),
			provider_subscription_id VARCHAR(100),
			current_period_start TIMESTAMP WITH TIME ZONE NOT NULL,
			current_period_end TIMESTAMP WITH TIME ZONE NOT NULL,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT false,
			canceled_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		`,
	},
}
