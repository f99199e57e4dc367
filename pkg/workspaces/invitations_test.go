package workspaces

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
)

func newInvitation(wsID, invitedBy int64) *Invitation {
	return &Invitation{
		WorkspaceID: wsID,
		Email:       "dev@example.com",
		Role:        auth.RoleMember,
		InvitedBy:   invitedBy,
	}
}

func TestCreateInvitation(t *testing.T) {
	svc, _, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	assert.NotZero(t, inv.ID)
	assert.Len(t, inv.Token, 64, "hex-encoded 32-byte token")
	assert.Equal(t, InvitationPending, inv.Status)
	assert.WithinDuration(t, time.Now().Add(DefaultInvitationTTL), inv.ExpiresAt, time.Minute)

	list, err := svc.ListInvitations(context.Background(), wsID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "dev@example.com", list[0].Email)
}

func TestCreateInvitationValidation(t *testing.T) {
	svc, _, wsID, ownerID, _ := newMemberFixture(t)

	err := svc.CreateInvitation(context.Background(), &Invitation{WorkspaceID: wsID, Email: "nope", Role: auth.RoleMember})
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err), "bad email")

	err = svc.CreateInvitation(context.Background(), &Invitation{WorkspaceID: wsID, Email: "a@b.c", Role: "superuser"})
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err), "bad role")

	err = svc.CreateInvitation(context.Background(), &Invitation{Email: "a@b.c", Role: auth.RoleMember, InvitedBy: ownerID})
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err), "missing workspace")
}

func TestReinviteRefreshesToken(t *testing.T) {
	svc, _, wsID, ownerID, _ := newMemberFixture(t)

	first := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), first))

	second := newInvitation(wsID, ownerID)
	second.Role = auth.RoleAdmin
	require.NoError(t, svc.CreateInvitation(context.Background(), second))

	assert.Equal(t, first.ID, second.ID, "re-invite reuses the row")
	assert.NotEqual(t, first.Token, second.Token, "token is rotated")

	// The old token no longer resolves
	got, err := svc.GetInvitationByToken(context.Background(), second.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, got.Role)
	_, err = svc.GetInvitationByToken(context.Background(), first.Token)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestReinviteAfterAcceptConflicts(t *testing.T) {
	svc, db, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	joinerID := seedUser(t, db, "dev@example.com")
	_, err := svc.AcceptInvitation(context.Background(), inv.Token, joinerID)
	require.NoError(t, err)

	err = svc.CreateInvitation(context.Background(), newInvitation(wsID, ownerID))
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))
}

func TestUpdateInvitationStatusInvalidTarget(t *testing.T) {
	svc, _, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	// Rejected before any write; the row stays pending
	for _, target := range []InvitationStatus{"pending", "expired", "deleted", ""} {
		err := svc.UpdateInvitationStatus(context.Background(), wsID, inv.ID, target)
		assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err), "target %q", target)
	}

	got, err := svc.GetInvitationByToken(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationPending, got.Status)
}

func TestRevokeInvitation(t *testing.T) {
	svc, _, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	require.NoError(t, svc.UpdateInvitationStatus(context.Background(), wsID, inv.ID, InvitationRevoked))

	got, err := svc.GetInvitationByToken(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationRevoked, got.Status)

	// Only pending invitations transition; a second revoke is not found
	err = svc.UpdateInvitationStatus(context.Background(), wsID, inv.ID, InvitationRevoked)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	// And so is a revoke scoped to the wrong workspace
	other := newInvitation(wsID, ownerID)
	other.Email = "other@example.com"
	require.NoError(t, svc.CreateInvitation(context.Background(), other))
	err = svc.UpdateInvitationStatus(context.Background(), wsID+1, other.ID, InvitationRevoked)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestAcceptInvitationByStatusUpdate(t *testing.T) {
	svc, db, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	inv.Role = auth.RoleAdmin
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	// The invited email's account joins; the admin driving the status
	// change is never the one added.
	joinerID := seedUser(t, db, "dev@example.com")
	require.NoError(t, svc.UpdateInvitationStatus(context.Background(), wsID, inv.ID, InvitationAccepted))

	member, err := svc.GetMember(context.Background(), wsID, joinerID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, member.Role, "membership carries the invited role")

	owner, err := svc.GetMember(context.Background(), wsID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleOwner, owner.Role, "the acting owner is untouched")

	got, err := svc.GetInvitationByToken(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationAccepted, got.Status)
	require.NotNil(t, got.AcceptedBy)
	assert.Equal(t, joinerID, *got.AcceptedBy)
}

func TestAcceptByStatusNeedsInvitedAccount(t *testing.T) {
	svc, _, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	// No user holds dev@example.com yet: the accept conflicts and the
	// invitation stays redeemable by token.
	err := svc.UpdateInvitationStatus(context.Background(), wsID, inv.ID, InvitationAccepted)
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	got, err := svc.GetInvitationByToken(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationPending, got.Status)
}

func TestAcceptInvitationByToken(t *testing.T) {
	svc, db, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	joinerID := seedUser(t, db, "dev@example.com")
	accepted, err := svc.AcceptInvitation(context.Background(), inv.Token, joinerID)
	require.NoError(t, err)
	assert.Equal(t, wsID, accepted.WorkspaceID)

	_, err = svc.GetMember(context.Background(), wsID, joinerID)
	require.NoError(t, err)

	// A second accept finds no pending invitation
	_, err = svc.AcceptInvitation(context.Background(), inv.Token, joinerID)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	_, err = svc.AcceptInvitation(context.Background(), "no-such-token", joinerID)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestAcceptExpiredInvitation(t *testing.T) {
	svc, db, wsID, ownerID, _ := newMemberFixture(t)

	inv := newInvitation(wsID, ownerID)
	require.NoError(t, svc.CreateInvitation(context.Background(), inv))

	// Move the clock past expiry
	svc.now = func() time.Time { return time.Now().Add(DefaultInvitationTTL + time.Hour) }

	joinerID := seedUser(t, db, "dev@example.com")
	_, err := svc.AcceptInvitation(context.Background(), inv.Token, joinerID)
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))

	// The janitor marks it expired
	expired, err := svc.ExpireInvitations(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, expired)

	got, err := svc.GetInvitationByToken(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationExpired, got.Status)
}
