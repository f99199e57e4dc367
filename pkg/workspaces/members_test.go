package workspaces

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
)

// newMemberFixture seeds a workspace with an owner and one member
func newMemberFixture(t *testing.T) (*PostgresService, *sql.DB, int64, int64, int64) {
	t.Helper()
	db := newTestDB(t)
	svc := NewPostgresService(db)

	ownerID := seedUser(t, db, "owner@example.com")
	memberID := seedUser(t, db, "member@example.com")

	ws, err := svc.Create(context.Background(), &CreateWorkspaceRequest{Name: "Acme"}, ownerID)
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(context.Background(), ws.ID, memberID, auth.RoleMember, &ownerID))

	return svc, db, ws.ID, ownerID, memberID
}

func TestListMembers(t *testing.T) {
	svc, _, wsID, ownerID, memberID := newMemberFixture(t)

	members, err := svc.ListMembers(context.Background(), wsID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	byUser := map[int64]*Member{}
	for _, m := range members {
		byUser[m.UserID] = m
	}
	assert.Equal(t, auth.RoleOwner, byUser[ownerID].Role)
	assert.Equal(t, auth.RoleMember, byUser[memberID].Role)
	assert.Equal(t, "member@example.com", byUser[memberID].Email)
	require.NotNil(t, byUser[memberID].InvitedBy)
	assert.Equal(t, ownerID, *byUser[memberID].InvitedBy)
}

func TestAddMember(t *testing.T) {
	svc, db, wsID, ownerID, memberID := newMemberFixture(t)

	// Duplicate membership is a conflict
	err := svc.AddMember(context.Background(), wsID, memberID, auth.RoleMember, &ownerID)
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	// Unknown role is rejected
	thirdID := seedUser(t, db, "third@example.com")
	err = svc.AddMember(context.Background(), wsID, thirdID, "superuser", nil)
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))
}

func TestUpdateMemberRole(t *testing.T) {
	svc, _, wsID, ownerID, memberID := newMemberFixture(t)

	require.NoError(t, svc.UpdateMemberRole(context.Background(), wsID, memberID, auth.RoleAdmin))
	m, err := svc.GetMember(context.Background(), wsID, memberID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, m.Role)

	err = svc.UpdateMemberRole(context.Background(), wsID, memberID, "superuser")
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))

	err = svc.UpdateMemberRole(context.Background(), wsID, 9999, auth.RoleMember)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	// Demoting the only owner is rejected
	err = svc.UpdateMemberRole(context.Background(), wsID, ownerID, auth.RoleMember)
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	// With a second owner the demotion goes through
	require.NoError(t, svc.UpdateMemberRole(context.Background(), wsID, memberID, auth.RoleOwner))
	require.NoError(t, svc.UpdateMemberRole(context.Background(), wsID, ownerID, auth.RoleMember))
}

func TestRemoveMember(t *testing.T) {
	svc, _, wsID, ownerID, memberID := newMemberFixture(t)

	// Removing the only owner is rejected
	err := svc.RemoveMember(context.Background(), wsID, ownerID)
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	require.NoError(t, svc.RemoveMember(context.Background(), wsID, memberID))
	_, err = svc.GetMember(context.Background(), wsID, memberID)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	// Removing a missing member reports not found
	err = svc.RemoveMember(context.Background(), wsID, memberID)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}
