package auth_test

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillbook/cli/internal/auth"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/keychain"
	"tillbook/cli/internal/profile"
)

func TestSnapshotRoundTrip(t *testing.T) {
	scope := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))

	_, ok, err := auth.LoadSnapshot(scope)
	require.NoError(t, err)
	assert.False(t, ok)

	b := bundle(profile.RoleManager, true, andheri, bandra)
	st := auth.Build(identity.User{ID: "user-1", Email: "user-1@shop.test"}, b.Profile, b.Tenants, bandra.ID)
	require.NoError(t, auth.SaveSnapshot(scope, st))

	got, ok, err := auth.LoadSnapshot(scope)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st, got)

	require.NoError(t, auth.SaveSnapshot(scope, auth.LoggedOut()))
	_, ok, err = auth.LoadSnapshot(scope)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	scope := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	require.NoError(t, scope.Set(keychain.KeyAuthState, "{not json"))

	st, ok, err := auth.LoadSnapshot(scope)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, auth.LoggedOut(), st)
}
