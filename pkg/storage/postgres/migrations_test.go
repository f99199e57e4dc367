package postgres

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres spins up a disposable postgres container. Integration
// tests skip under -short.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("atrium"),
		tcpostgres.WithUsername("atrium"),
		tcpostgres.WithPassword("atrium"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestMigrateAppliesFullSchema(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db, discardLogger()))

	var version int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, Migrations[len(Migrations)-1].Version, version)

	// Every table the services touch must exist.
	tables := []string{
		"users", "workspaces", "workspace_members", "invitations",
		"sessions", "sso_providers", "sso_user_mappings", "api_keys",
		"webhook_destinations", "webhook_deliveries", "audit_logs",
		"usage_events", "usage_counters", "usage_daily", "subscriptions",
	}
	for _, table := range tables {
		var exists bool
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table).Scan(&exists))
		assert.True(t, exists, "table %s missing", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db, discardLogger()))
	require.NoError(t, Migrate(ctx, db, discardLogger()))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(Migrations), count)
}

func TestMigratedSchemaAcceptsServiceWrites(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, discardLogger()))

	now := time.Now().UTC()

	var userID int64
	require.NoError(t, db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, created_at, updated_at)
		VALUES ('owner@acme.test', 'Owner', $1, $1) RETURNING id
	`, now).Scan(&userID))

	var wsID int64
	require.NoError(t, db.QueryRowContext(ctx, `
		INSERT INTO workspaces (slug, name, created_at, updated_at)
		VALUES ('acme', 'Acme', $1, $1) RETURNING id
	`, now).Scan(&wsID))

	_, err := db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at, created_at)
		VALUES ($1, $2, 'owner', $3, $3)
	`, wsID, userID, now)
	require.NoError(t, err)

	// The counter upsert the usage recorder relies on.
	for i := 0; i < 2; i++ {
		_, err = db.ExecContext(ctx, `
			INSERT INTO usage_counters (workspace_id, period_start, period_end, api_requests_count)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (workspace_id, period_start) DO UPDATE SET
				api_requests_count = usage_counters.api_requests_count + 1
		`, wsID, now.Truncate(24*time.Hour), now.AddDate(0, 1, 0))
		require.NoError(t, err)
	}
	var requests int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT api_requests_count FROM usage_counters WHERE workspace_id = $1`, wsID).Scan(&requests))
	assert.Equal(t, int64(2), requests)

	// Member rows cascade with their workspace.
	_, err = db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, wsID)
	require.NoError(t, err)
	var members int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1`, wsID).Scan(&members))
	assert.Zero(t, members)
}
