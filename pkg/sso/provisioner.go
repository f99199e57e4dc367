package sso

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
)

// Provisioner handles JIT (Just-In-Time) user provisioning. First login
// creates the user, a personal workspace and an owner membership in one
// transaction; later logins refresh profile fields.
type Provisioner struct {
	db  *sql.DB
	now func() time.Time
}

// NewProvisioner creates a new user provisioner
func NewProvisioner(db *sql.DB) *Provisioner {
	return &Provisioner{db: db, now: time.Now}
}

// ProvisionResult is the signed-in principal plus the workspace and role
// the session should start in.
type ProvisionResult struct {
	User      *auth.User
	Workspace *auth.Workspace
	Role      auth.Role
}

// Provision provisions or refreshes a user from a provider identity
func (p *Provisioner) Provision(ctx context.Context, identity *Identity, config *ProviderConfig) (*ProvisionResult, error) {
	var userID int64
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM sso_user_mappings
		WHERE provider_id = $1 AND external_user_id = $2
	`, config.ID, identity.ExternalID).Scan(&userID)

	if err == sql.ErrNoRows {
		if !config.AutoProvision {
			return nil, apierr.Forbidden("auto-provisioning is disabled for this provider")
		}
		userID, err = p.createUser(ctx, identity, config)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check user mapping: %w", err)
	} else {
		if err := p.refreshUser(ctx, userID, identity, config); err != nil {
			return nil, err
		}
	}

	return p.buildResult(ctx, userID, identity, config)
}

// createUser creates the user, its mapping and its personal workspace
func (p *Provisioner) createUser(ctx context.Context, identity *Identity, config *ProviderConfig) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := p.now().UTC()

	var userID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, name, is_active, created_at, updated_at, last_login_at)
		VALUES ($1, $2, true, $3, $3, $3)
		RETURNING id
	`, identity.Email, displayName(identity), now).Scan(&userID)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sso_user_mappings (provider_id, external_user_id, user_id, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $4)
	`, config.ID, identity.ExternalID, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create user mapping: %w", err)
	}

	if _, err := p.ensurePersonalWorkspace(ctx, tx, userID, identity, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return userID, nil
}

// refreshUser updates profile fields and login timestamps on repeat logins
func (p *Provisioner) refreshUser(ctx context.Context, userID int64, identity *Identity, config *ProviderConfig) error {
	now := p.now().UTC()

	_, err := p.db.ExecContext(ctx, `
		UPDATE users
		SET email = $1, name = $2, updated_at = $3, last_login_at = $3
		WHERE id = $4
	`, identity.Email, displayName(identity), now, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		UPDATE sso_user_mappings
		SET last_login_at = $1, updated_at = $1
		WHERE provider_id = $2 AND external_user_id = $3
	`, now, config.ID, identity.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to update user mapping: %w", err)
	}
	return nil
}

// buildResult decides which workspace the session starts in. Providers
// with a matching group mapping sign the user into the provider's shared
// workspace under the mapped role; everyone else lands in their personal
// workspace as owner.
func (p *Provisioner) buildResult(ctx context.Context, userID int64, identity *Identity, config *ProviderConfig) (*ProvisionResult, error) {
	user := &auth.User{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, is_active, created_at, updated_at, last_login_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.Name, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if !user.IsActive {
		return nil, apierr.Unauthorized("user account is deactivated")
	}

	if role, ok := mappedRole(identity.Groups, config.GroupMapping); ok {
		ws, err := p.ensureSharedWorkspace(ctx, userID, role, config)
		if err != nil {
			return nil, err
		}
		return &ProvisionResult{User: user, Workspace: ws, Role: role}, nil
	}

	ws, role, err := p.personalWorkspace(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ProvisionResult{User: user, Workspace: ws, Role: role}, nil
}

// ensurePersonalWorkspace creates the user's personal workspace and owner
// membership inside the provisioning transaction.
func (p *Provisioner) ensurePersonalWorkspace(ctx context.Context, tx *sql.Tx, userID int64, identity *Identity, now time.Time) (int64, error) {
	slug := personalSlug(identity.Email)

	// Slugs are unique; append the user ID on collision.
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM workspaces WHERE slug = $1)`, slug).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check workspace slug: %w", err)
	}
	if exists {
		slug = fmt.Sprintf("%s-%d", slug, userID)
	}

	var workspaceID int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (slug, name, plan, status, settings, created_at, updated_at)
		VALUES ($1, $2, 'free', 'active', '{}', $3, $3)
		RETURNING id
	`, slug, displayName(identity), now).Scan(&workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to create personal workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $4)
	`, workspaceID, userID, auth.RoleOwner, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create owner membership: %w", err)
	}

	return workspaceID, nil
}

// ensureSharedWorkspace upserts membership in the provider's shared
// workspace under the mapped role, creating the workspace on first use.
func (p *Provisioner) ensureSharedWorkspace(ctx context.Context, userID int64, role auth.Role, config *ProviderConfig) (*auth.Workspace, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := p.now().UTC()
	slug := "sso-" + config.Name

	ws := &auth.Workspace{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, slug, name, plan FROM workspaces WHERE slug = $1
	`, slug).Scan(&ws.ID, &ws.Slug, &ws.Name, &ws.Plan)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO workspaces (slug, name, plan, status, settings, created_at, updated_at)
			VALUES ($1, $2, 'free', 'active', '{}', $3, $3)
			RETURNING id, slug, name, plan
		`, slug, config.Name+" (SSO)", now).Scan(&ws.ID, &ws.Slug, &ws.Name, &ws.Plan)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure shared workspace: %w", err)
	}

	// Group membership is authoritative on every login: the mapped role
	// replaces whatever the member had.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = $3
	`, ws.ID, userID, role, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert shared membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ws, nil
}

// personalWorkspace returns the user's oldest membership, which is the
// personal workspace created at provisioning time.
func (p *Provisioner) personalWorkspace(ctx context.Context, userID int64) (*auth.Workspace, auth.Role, error) {
	ws := &auth.Workspace{}
	var role auth.Role
	err := p.db.QueryRowContext(ctx, `
		SELECT w.id, w.slug, w.name, w.plan, m.role
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at ASC, w.id ASC
		LIMIT 1
	`, userID).Scan(&ws.ID, &ws.Slug, &ws.Name, &ws.Plan, &role)
	if err == sql.ErrNoRows {
		return nil, "", apierr.Forbidden("user has no workspace membership")
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load workspace membership: %w", err)
	}
	return ws, role, nil
}

// GetUserMapping retrieves the provider identity mapping
func (p *Provisioner) GetUserMapping(ctx context.Context, providerID int64, externalUserID string) (*UserMapping, error) {
	mapping := &UserMapping{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, provider_id, external_user_id, user_id, last_login_at, created_at, updated_at
		FROM sso_user_mappings
		WHERE provider_id = $1 AND external_user_id = $2
	`, providerID, externalUserID).Scan(
		&mapping.ID, &mapping.ProviderID, &mapping.ExternalUserID,
		&mapping.UserID, &mapping.LastLoginAt, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("user mapping not found")
	}
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// DeleteUserMapping removes a provider identity mapping
func (p *Provisioner) DeleteUserMapping(ctx context.Context, providerID int64, externalUserID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM sso_user_mappings
		WHERE provider_id = $1 AND external_user_id = $2
	`, providerID, externalUserID)
	return err
}

// mappedRole returns the highest-privilege role the user's groups map to
func mappedRole(groups []string, mappings []GroupMap) (auth.Role, bool) {
	groupToRole := make(map[string]auth.Role, len(mappings))
	for _, m := range mappings {
		groupToRole[m.Group] = m.Role
	}

	var (
		best  auth.Role
		found bool
	)
	for _, group := range groups {
		role, ok := groupToRole[group]
		if !ok {
			continue
		}
		if !found || rolePriority(role) > rolePriority(best) {
			best = role
			found = true
		}
	}
	return best, found
}

func rolePriority(role auth.Role) int {
	switch role {
	case auth.RoleOwner:
		return 3
	case auth.RoleAdmin:
		return 2
	case auth.RoleMember:
		return 1
	}
	return 0
}

// displayName picks the best available name from the identity
func displayName(identity *Identity) string {
	if identity.FullName != "" {
		return identity.FullName
	}
	if identity.FirstName != "" && identity.LastName != "" {
		return identity.FirstName + " " + identity.LastName
	}
	return identity.Email
}

// personalSlug derives a workspace slug from the email local part
func personalSlug(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == '+':
			b.WriteByte('-')
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "workspace"
	}
	return slug
}
