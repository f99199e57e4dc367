package sso

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/auth"
)

func TestProviderStorageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewStorage(db)
	ctx := context.Background()

	config := &ProviderConfig{
		Name:          "corp-okta",
		ProviderType:  ProviderTypeOIDC,
		ProviderName:  ProviderOkta,
		Enabled:       true,
		AutoProvision: true,
		DefaultRole:   auth.RoleMember,
		GroupMapping:  []GroupMap{{Group: "admins", Role: auth.RoleAdmin}},
		OIDCConfig: &OIDCConfig{
			ClientID:     "client-id",
			ClientSecret: "s3cret",
			IssuerURL:    "https://corp.okta.com",
			RedirectURL:  "https://atrium.example.com/auth/sso/corp-okta/callback",
			Scopes:       []string{"openid", "email"},
		},
		AttributeMapping: AttributeMap{UserID: "sub", Email: "email"},
	}

	require.NoError(t, storage.CreateProvider(ctx, config))
	assert.NotZero(t, config.ID)

	got, err := storage.GetProvider(ctx, "corp-okta")
	require.NoError(t, err)
	assert.Equal(t, config.ID, got.ID)
	assert.Equal(t, ProviderTypeOIDC, got.ProviderType)
	require.NotNil(t, got.OIDCConfig)
	assert.Equal(t, "s3cret", got.OIDCConfig.ClientSecret, "secrets round-trip through storage")
	require.Len(t, got.GroupMapping, 1)
	assert.Equal(t, auth.RoleAdmin, got.GroupMapping[0].Role)

	exists, err := storage.ProviderExists(ctx, "corp-okta")
	require.NoError(t, err)
	assert.True(t, exists)

	got.Enabled = false
	require.NoError(t, storage.UpdateProvider(ctx, got))

	updated, err := storage.GetProviderByID(ctx, got.ID)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	list, err := storage.ListProviders(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, list, "enabled-only listing skips disabled providers")

	require.NoError(t, storage.DeleteProvider(ctx, "corp-okta"))
	_, err = storage.GetProvider(ctx, "corp-okta")
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestProviderStorageNotFound(t *testing.T) {
	db := newTestDB(t)
	storage := NewStorage(db)
	ctx := context.Background()

	_, err := storage.GetProvider(ctx, "ghost")
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	err = storage.DeleteProvider(ctx, "ghost")
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	err = storage.UpdateProvider(ctx, &ProviderConfig{ID: 999, ProviderType: ProviderTypeOIDC})
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}
