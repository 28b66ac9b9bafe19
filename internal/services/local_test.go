package services

import (
	"context"
	"testing"

	"github.com/relaychat/appcore/internal/storage"
	"github.com/relaychat/appcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close() // Ignore error in test
	})
	return store
}

func TestLocalCredentialStore_InitializeHealthy(t *testing.T) {
	store := newTestStore(t)
	creds := NewLocalCredentialStore(store)
	assert.NoError(t, creds.Initialize(context.Background()))
}

func TestLocalAuthService_FirstRunReturnsEmptySession(t *testing.T) {
	store := newTestStore(t)
	auth := NewLocalAuthService(store)

	session, err := auth.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Empty(t, session.ID)
}

func TestLocalAuthService_RestoresCachedSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, types.Session{ID: "sess-1", Token: "tok"}, "acct-1"))

	auth := NewLocalAuthService(store)
	session, err := auth.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
}

func TestLocalUserDataService_FirstRun(t *testing.T) {
	store := newTestStore(t)
	userData := NewLocalUserDataService(store)

	data, err := userData.LoadUserData(context.Background(), types.Session{})
	require.NoError(t, err)
	assert.Empty(t, data.AccountID)
	assert.Equal(t, types.FlagSnapshot{}, data.Flags)
}

func TestLocalUserDataService_ReturningUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, types.Session{ID: "sess-1", Token: "tok"}, "acct-7"))
	require.NoError(t, store.SetFlag(ctx, storage.FlagHasPermissions, true))

	userData := NewLocalUserDataService(store)
	data, err := userData.LoadUserData(ctx, types.Session{ID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "acct-7", data.AccountID)
	assert.True(t, data.Flags.HasPermissions)
}
