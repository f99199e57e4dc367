package sso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
)

// DefaultSessionTTL is used when no TTL is configured
const DefaultSessionTTL = 24 * time.Hour

// SessionManager persists dashboard sessions server-side. Session IDs are
// random UUIDs; the cookie is just an opaque handle, so revoking the row
// kills the session immediately.
type SessionManager struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSessionManager creates a session manager with the given TTL
func NewSessionManager(db *sql.DB, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{db: db, ttl: ttl, now: time.Now}
}

// TTL returns the configured session lifetime
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// Create inserts a new session row and fills in ID and timestamps
func (sm *SessionManager) Create(ctx context.Context, rec *SessionRecord) error {
	if rec.UserID == 0 || rec.WorkspaceID == 0 {
		return apierr.Invalid("session requires a user and a workspace")
	}
	if !rec.Role.Valid() {
		return apierr.Invalid("invalid role: %s", rec.Role)
	}

	rec.ID = uuid.NewString()
	rec.CreatedAt = sm.now().UTC()
	rec.ExpiresAt = rec.CreatedAt.Add(sm.ttl)

	_, err := sm.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, workspace_id, role, provider_id, saml_session_index, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.UserID, rec.WorkspaceID, rec.Role, rec.ProviderID,
		rec.SAMLSessionIndex, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get retrieves a live session row
func (sm *SessionManager) Get(ctx context.Context, sessionID string) (*SessionRecord, error) {
	rec := &SessionRecord{}
	err := sm.db.QueryRowContext(ctx, `
		SELECT id, user_id, workspace_id, role, provider_id, saml_session_index, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`, sessionID, sm.now().UTC()).Scan(
		&rec.ID, &rec.UserID, &rec.WorkspaceID, &rec.Role, &rec.ProviderID,
		&rec.SAMLSessionIndex, &rec.CreatedAt, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, apierr.Unauthorized("invalid or expired session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// ResolveSession loads the session plus its user and workspace for the
// gate. Capabilities are left empty; the gate expands the role. The role
// comes from the live membership row, not the sign-in snapshot, so a
// removed member stops resolving and a demoted one loses the old role on
// their next request.
func (sm *SessionManager) ResolveSession(ctx context.Context, sessionID string) (*auth.Session, error) {
	var (
		sess = &auth.Session{
			User:      &auth.User{},
			Workspace: &auth.Workspace{},
		}
		isActive bool
	)

	err := sm.db.QueryRowContext(ctx, `
		SELECT s.id, m.role, s.expires_at,
		       u.id, u.email, u.name, u.is_active,
		       w.id, w.slug, w.name, w.plan
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		JOIN workspaces w ON w.id = s.workspace_id
		JOIN workspace_members m ON m.workspace_id = s.workspace_id AND m.user_id = s.user_id
		WHERE s.id = $1 AND s.expires_at > $2
	`, sessionID, sm.now().UTC()).Scan(
		&sess.ID, &sess.Role, &sess.ExpiresAt,
		&sess.User.ID, &sess.User.Email, &sess.User.Name, &isActive,
		&sess.Workspace.ID, &sess.Workspace.Slug, &sess.Workspace.Name, &sess.Workspace.Plan)
	if err == sql.ErrNoRows {
		return nil, apierr.Unauthorized("invalid or expired session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	if !isActive {
		return nil, apierr.Unauthorized("user account is deactivated")
	}

	sess.User.IsActive = isActive
	return sess, nil
}

// Revoke deletes one session. Revoking an already-gone session is not an
// error; the end state is the same.
func (sm *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	_, err := sm.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}

// RevokeAllForMember deletes a user's sessions in one workspace. Member
// removal calls this so the rows don't linger until expiry; sessions the
// user holds in other workspaces are untouched.
func (sm *SessionManager) RevokeAllForMember(ctx context.Context, userID, workspaceID int64) (int64, error) {
	result, err := sm.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1 AND workspace_id = $2`, userID, workspaceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpired removes expired session rows. Called by the janitor.
func (sm *SessionManager) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := sm.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, sm.now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
