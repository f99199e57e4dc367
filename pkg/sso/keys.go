package sso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/async"
	"github.com/platinummonkey/atrium/pkg/auth"
)

// KeySessionResolver turns a bearer API key into a session for the gate.
// Keys authenticate as the workspace member who created them, with the
// key's scopes as the capability grant.
type KeySessionResolver struct {
	db   *sql.DB
	keys *auth.APIKeyStore
}

// NewKeySessionResolver creates a resolver over the API key store
func NewKeySessionResolver(db *sql.DB, keys *auth.APIKeyStore) *KeySessionResolver {
	return &KeySessionResolver{db: db, keys: keys}
}

// ResolveKey validates the token shape, looks the key up by hash and builds
// the session. The last-used timestamp is updated off the request path.
func (r *KeySessionResolver) ResolveKey(ctx context.Context, token string) (*auth.Session, error) {
	if err := r.keys.Generator().ValidateTokenFormat(token); err != nil {
		return nil, apierr.Unauthorized("invalid or expired API key")
	}

	key, err := r.keys.GetByHash(ctx, r.keys.Generator().HashToken(token))
	if err != nil {
		return nil, err
	}

	sess := &auth.Session{
		User:         &auth.User{},
		Workspace:    &auth.Workspace{},
		Capabilities: key.Scopes,
		APIKeyID:     key.ID,
	}
	if key.ExpiresAt != nil {
		sess.ExpiresAt = *key.ExpiresAt
	}

	var isActive bool
	err = r.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, u.is_active,
		       w.id, w.slug, w.name, w.plan
		FROM users u, workspaces w
		WHERE u.id = $1 AND w.id = $2
	`, key.CreatedBy, key.WorkspaceID).Scan(
		&sess.User.ID, &sess.User.Email, &sess.User.Name, &isActive,
		&sess.Workspace.ID, &sess.Workspace.Slug, &sess.Workspace.Name, &sess.Workspace.Plan)
	if err == sql.ErrNoRows {
		// Key survived its creator or workspace; treat as revoked.
		return nil, apierr.Unauthorized("invalid or expired API key")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key principal: %w", err)
	}

	if !isActive {
		return nil, apierr.Unauthorized("user account is deactivated")
	}
	sess.User.IsActive = isActive

	keyID := key.ID
	async.SafeGo(ctx, 5*time.Second, "touch api key", func(ctx context.Context) error {
		return r.keys.Touch(ctx, keyID)
	})

	return sess, nil
}
