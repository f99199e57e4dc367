package workspaces

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
)

// ListMembers retrieves all members of a workspace with user details
func (s *PostgresService) ListMembers(ctx context.Context, workspaceID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, m.invited_by, m.joined_at, u.email, u.name
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.InvitedBy,
			&m.JoinedAt, &m.Email, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMember retrieves a specific member
func (s *PostgresService) GetMember(ctx context.Context, workspaceID, userID int64) (*Member, error) {
	m := &Member{}
	err := s.db.QueryRowContext(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, m.invited_by, m.joined_at, u.email, u.name
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1 AND m.user_id = $2
	`, workspaceID, userID).Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.InvitedBy,
		&m.JoinedAt, &m.Email, &m.Name)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("member not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// AddMember adds a user to a workspace
func (s *PostgresService) AddMember(ctx context.Context, workspaceID, userID int64, role auth.Role, invitedBy *int64) error {
	if !role.Valid() {
		return apierr.Invalid("unknown role %q", role)
	}

	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, invited_by, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, workspaceID, userID, role, invitedBy, now)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apierr.Conflict("user is already a member")
	}
	return nil
}

// UpdateMemberRole changes a member's role. Demoting the last owner is
// rejected so every workspace keeps at least one owner.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, workspaceID, userID int64, role auth.Role) error {
	if !role.Valid() {
		return apierr.Invalid("unknown role %q", role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := memberRole(ctx, tx, workspaceID, userID)
	if err != nil {
		return err
	}
	if current == auth.RoleOwner && role != auth.RoleOwner {
		if err := requireAnotherOwner(ctx, tx, workspaceID, userID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workspace_members SET role = $1 WHERE workspace_id = $2 AND user_id = $3
	`, role, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return tx.Commit()
}

// RemoveMember removes a user from a workspace, keeping the last-owner
// invariant.
func (s *PostgresService) RemoveMember(ctx context.Context, workspaceID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := memberRole(ctx, tx, workspaceID, userID)
	if err != nil {
		return err
	}
	if current == auth.RoleOwner {
		if err := requireAnotherOwner(ctx, tx, workspaceID, userID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return tx.Commit()
}

func memberRole(ctx context.Context, tx *sql.Tx, workspaceID, userID int64) (auth.Role, error) {
	var role auth.Role
	err := tx.QueryRowContext(ctx, `
		SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", apierr.NotFound("member not found")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}

func requireAnotherOwner(ctx context.Context, tx *sql.Tx, workspaceID, userID int64) error {
	var others int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workspace_members
		WHERE workspace_id = $1 AND role = 'owner' AND user_id != $2
	`, workspaceID, userID).Scan(&others)
	if err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	if others == 0 {
		return apierr.Conflict("workspace must retain at least one owner")
	}
	return nil
}
