package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// DefaultInvitationTTL is how long an invitation stays accepted-able
const DefaultInvitationTTL = 7 * 24 * time.Hour

const invitationColumns = `id, workspace_id, email, role, token, status, invited_by, invited_at, expires_at, accepted_at, accepted_by`

// CreateInvitation creates (or re-issues) an invitation. Re-inviting the
// same email refreshes the token and expiry unless the earlier invitation
// was already accepted.
func (s *PostgresService) CreateInvitation(ctx context.Context, inv *Invitation) error {
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	if inv.Email == "" || !strings.Contains(inv.Email, "@") {
		return apierr.Invalid("a valid email is required")
	}
	if !inv.Role.Valid() {
		return apierr.Invalid("unknown role %q", inv.Role)
	}
	if inv.WorkspaceID == 0 {
		return apierr.Invalid("workspace is required")
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	inv.Token = token
	inv.Status = InvitationPending

	now := s.now().UTC()
	if inv.InvitedAt.IsZero() {
		inv.InvitedAt = now
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = now.Add(DefaultInvitationTTL)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (workspace_id, email, role, token, status, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workspace_id, email) DO UPDATE
		SET role = EXCLUDED.role, token = EXCLUDED.token, status = EXCLUDED.status,
		    invited_by = EXCLUDED.invited_by, invited_at = EXCLUDED.invited_at,
		    expires_at = EXCLUDED.expires_at, accepted_at = NULL, accepted_by = NULL
		WHERE invitations.status != 'accepted'
		RETURNING id
	`, inv.WorkspaceID, inv.Email, inv.Role, inv.Token, inv.Status,
		inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt).Scan(&inv.ID)
	if err == sql.ErrNoRows {
		return apierr.Conflict("invitation for %s was already accepted", inv.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitationByToken retrieves an invitation by its token
func (s *PostgresService) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE token = $1
	`, token)
	return scanInvitation(row)
}

// ListInvitations lists pending invitations for a workspace
func (s *PostgresService) ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE workspace_id = $1 AND status = $2
		ORDER BY invited_at DESC
	`, workspaceID, InvitationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// UpdateInvitationStatus moves a pending invitation to accepted or revoked.
// Any other target status is rejected before a write happens. Accepting
// joins the invited email's user as a member with the invited role; the
// caller (an admin acting on the invitation) never joins themselves. When
// no account exists for the email yet, the accept conflicts and the
// invitee has to redeem the token link instead.
func (s *PostgresService) UpdateInvitationStatus(ctx context.Context, workspaceID, id int64, status InvitationStatus) error {
	if !ValidStatusTarget(status) {
		return apierr.Invalid("invalid invitation status %q", status)
	}

	if status == InvitationRevoked {
		result, err := s.db.ExecContext(ctx, `
			UPDATE invitations SET status = $1
			WHERE id = $2 AND workspace_id = $3 AND status = $4
		`, InvitationRevoked, id, workspaceID, InvitationPending)
		if err != nil {
			return fmt.Errorf("failed to revoke invitation: %w", err)
		}
		return requireRow(result, "invitation %d", id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1 AND workspace_id = $2
	`, id, workspaceID)
	inv, err := scanInvitation(row)
	if err != nil {
		return err
	}

	var invitedID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, inv.Email).Scan(&invitedID)
	if err == sql.ErrNoRows {
		return apierr.Conflict("no account exists for %s; the invitee must redeem the invitation link", inv.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to look up invited user: %w", err)
	}

	if _, err := s.acceptInTx(ctx, tx, `id = $1 AND workspace_id = $2`, invitedID, id, workspaceID); err != nil {
		return err
	}
	return tx.Commit()
}

// AcceptInvitation accepts an invitation by token, joining the user as a
// member. Used by the public accept link; returns the invitation so the
// caller can redirect into the workspace.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64) (*Invitation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.acceptInTx(ctx, tx, `token = $1`, userID, token)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inv, nil
}

// acceptInTx loads a pending invitation matched by where, marks it
// accepted and adds the membership. The status guard on the UPDATE keeps
// concurrent accepts to exactly one winner.
func (s *PostgresService) acceptInTx(ctx context.Context, tx *sql.Tx, where string, userID int64, matchArgs ...interface{}) (*Invitation, error) {
	now := s.now().UTC()

	row := tx.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE `+where+`
	`, matchArgs...)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvitationPending {
		return nil, apierr.NotFound("invitation not found")
	}
	if !now.Before(inv.ExpiresAt) {
		return nil, apierr.Invalid("invitation has expired")
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE invitations SET status = 'accepted', accepted_at = $1, accepted_by = $2
		WHERE id = $3 AND status = 'pending'
	`, now, userID, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	if err := requireRow(result, "invitation"); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, invited_by, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, inv.WorkspaceID, userID, inv.Role, inv.InvitedBy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	inv.Status = InvitationAccepted
	inv.AcceptedAt = &now
	inv.AcceptedBy = &userID
	return inv, nil
}

// ExpireInvitations marks overdue pending invitations expired. The janitor
// runs this on a schedule.
func (s *PostgresService) ExpireInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status = $1 WHERE status = $2 AND expires_at < $3
	`, InvitationExpired, InvitationPending, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return result.RowsAffected()
}

func scanInvitation(row rowScanner) (*Invitation, error) {
	inv := &Invitation{}
	var acceptedAt sql.NullTime
	var acceptedBy sql.NullInt64
	err := row.Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role, &inv.Token,
		&inv.Status, &inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt, &acceptedAt, &acceptedBy)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.Int64
	}
	return inv, nil
}
