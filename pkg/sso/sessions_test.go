package sso

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
)

// newTestDB builds the sqlite schema shared by the sso tests
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// :memory: databases are per-connection in sqlite
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			last_login_at TIMESTAMP
		);
		CREATE TABLE workspaces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT 'free',
			status TEXT NOT NULL DEFAULT 'active',
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE workspace_members (
			workspace_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			invited_by INTEGER,
			joined_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (workspace_id, user_id)
		);
		CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			workspace_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			provider_id INTEGER NOT NULL DEFAULT 0,
			saml_session_index TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		);
		CREATE TABLE sso_user_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			external_user_id TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			last_login_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (provider_id, external_user_id)
		);
		CREATE TABLE sso_providers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			provider_type TEXT NOT NULL,
			provider_name TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			auto_provision BOOLEAN NOT NULL DEFAULT true,
			default_role TEXT NOT NULL DEFAULT 'member',
			saml_config BLOB,
			oidc_config BLOB,
			group_mapping BLOB,
			attribute_mapping BLOB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`)
	require.NoError(t, err)
	return db
}

func seedUserAndWorkspace(t *testing.T, db *sql.DB) (userID, workspaceID int64) {
	t.Helper()
	now := time.Now().UTC()

	res, err := db.Exec(`INSERT INTO users (email, name, is_active, created_at, updated_at) VALUES ('jo@example.com', 'Jo', true, ?, ?)`, now, now)
	require.NoError(t, err)
	userID, _ = res.LastInsertId()

	res, err = db.Exec(`INSERT INTO workspaces (slug, name, plan, created_at, updated_at) VALUES ('acme', 'Acme', 'pro', ?, ?)`, now, now)
	require.NoError(t, err)
	workspaceID, _ = res.LastInsertId()

	_, err = db.Exec(`INSERT INTO workspace_members (workspace_id, user_id, role, joined_at, created_at) VALUES (?, ?, 'owner', ?, ?)`, workspaceID, userID, now, now)
	require.NoError(t, err)
	return userID, workspaceID
}

func TestSessionCreateAndResolve(t *testing.T) {
	db := newTestDB(t)
	userID, workspaceID := seedUserAndWorkspace(t, db)
	sm := NewSessionManager(db, time.Hour)

	rec := &SessionRecord{UserID: userID, WorkspaceID: workspaceID, Role: auth.RoleOwner}
	require.NoError(t, sm.Create(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.WithinDuration(t, rec.CreatedAt.Add(time.Hour), rec.ExpiresAt, time.Second)

	sess, err := sm.ResolveSession(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, sess.ID)
	assert.Equal(t, "jo@example.com", sess.User.Email)
	assert.Equal(t, "acme", sess.Workspace.Slug)
	assert.Equal(t, "pro", sess.Workspace.Plan)
	assert.Equal(t, auth.RoleOwner, sess.Role)
	assert.Empty(t, sess.Capabilities, "capability expansion is the gate's job")
}

func TestSessionCreateValidation(t *testing.T) {
	db := newTestDB(t)
	sm := NewSessionManager(db, time.Hour)

	err := sm.Create(context.Background(), &SessionRecord{UserID: 1, WorkspaceID: 2, Role: "superuser"})
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))

	err = sm.Create(context.Background(), &SessionRecord{WorkspaceID: 2, Role: auth.RoleMember})
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))
}

func TestSessionExpiry(t *testing.T) {
	db := newTestDB(t)
	userID, workspaceID := seedUserAndWorkspace(t, db)
	sm := NewSessionManager(db, time.Hour)

	rec := &SessionRecord{UserID: userID, WorkspaceID: workspaceID, Role: auth.RoleOwner}
	require.NoError(t, sm.Create(context.Background(), rec))

	// Move the clock past expiry
	sm.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := sm.ResolveSession(context.Background(), rec.ID)
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))

	deleted, err := sm.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestSessionRevoke(t *testing.T) {
	db := newTestDB(t)
	userID, workspaceID := seedUserAndWorkspace(t, db)
	sm := NewSessionManager(db, time.Hour)

	rec := &SessionRecord{UserID: userID, WorkspaceID: workspaceID, Role: auth.RoleAdmin}
	require.NoError(t, sm.Create(context.Background(), rec))

	require.NoError(t, sm.Revoke(context.Background(), rec.ID))
	_, err := sm.ResolveSession(context.Background(), rec.ID)
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))

	// Revoking again is a no-op, not an error
	assert.NoError(t, sm.Revoke(context.Background(), rec.ID))
}

func TestSessionRejectsDeactivatedUser(t *testing.T) {
	db := newTestDB(t)
	userID, workspaceID := seedUserAndWorkspace(t, db)
	sm := NewSessionManager(db, time.Hour)

	rec := &SessionRecord{UserID: userID, WorkspaceID: workspaceID, Role: auth.RoleOwner}
	require.NoError(t, sm.Create(context.Background(), rec))

	_, err := db.Exec(`UPDATE users SET is_active = false WHERE id = ?`, userID)
	require.NoError(t, err)

	_, err = sm.ResolveSession(context.Background(), rec.ID)
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
}

func TestResolveRequiresLiveMembership(t *testing.T) {
	db := newTestDB(t)
	userID, workspaceID := seedUserAndWorkspace(t, db)
	sm := NewSessionManager(db, time.Hour)

	rec := &SessionRecord{UserID: userID, WorkspaceID: workspaceID, Role: auth.RoleOwner}
	require.NoError(t, sm.Create(context.Background(), rec))

	_, err := sm.ResolveSession(context.Background(), rec.ID)
	require.NoError(t, err)

	// Removing the membership kills the session on the next resolve even
	// though the session row itself is still live.
	_, err = db.Exec(`DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?`, workspaceID, userID)
	require.NoError(t, err)

	_, err = sm.ResolveSession(context.Background(), rec.ID)
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
}

func TestResolveReadsLiveRole(t *testing.T) {
	db := newTestDB(t)
	userID, workspaceID := seedUserAndWorkspace(t, db)
	sm := NewSessionManager(db, time.Hour)

	rec := &SessionRecord{UserID: userID, WorkspaceID: workspaceID, Role: auth.RoleOwner}
	require.NoError(t, sm.Create(context.Background(), rec))

	_, err := db.Exec(`UPDATE workspace_members SET role = 'member' WHERE workspace_id = ? AND user_id = ?`, workspaceID, userID)
	require.NoError(t, err)

	// A demotion takes effect on the next request; the role snapshotted
	// onto the session row at sign-in is not trusted.
	sess, err := sm.ResolveSession(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, sess.Role)
}

func TestRevokeAllForMember(t *testing.T) {
	db := newTestDB(t)
	userID, workspaceID := seedUserAndWorkspace(t, db)
	sm := NewSessionManager(db, time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, sm.Create(context.Background(), &SessionRecord{UserID: userID, WorkspaceID: workspaceID, Role: auth.RoleOwner}))
	}
	// A session in another workspace survives the member-scoped revoke
	now := time.Now().UTC()
	res, err := db.Exec(`INSERT INTO workspaces (slug, name, plan, created_at, updated_at) VALUES ('beta', 'Beta', 'free', ?, ?)`, now, now)
	require.NoError(t, err)
	otherWS, _ := res.LastInsertId()
	_, err = db.Exec(`INSERT INTO workspace_members (workspace_id, user_id, role, joined_at, created_at) VALUES (?, ?, 'member', ?, ?)`, otherWS, userID, now, now)
	require.NoError(t, err)
	other := &SessionRecord{UserID: userID, WorkspaceID: otherWS, Role: auth.RoleMember}
	require.NoError(t, sm.Create(context.Background(), other))

	revoked, err := sm.RevokeAllForMember(context.Background(), userID, workspaceID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, revoked)

	_, err = sm.ResolveSession(context.Background(), other.ID)
	assert.NoError(t, err)
}
