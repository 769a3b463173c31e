// Package kvstoretest holds behaviour checks shared by every kvstore backend.
package kvstoretest

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-tenant-session/kvstore"
	"github.com/stretchr/testify/require"
)

func Run(t *testing.T, store kvstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		v, ok, err := store.Get(ctx, "absent")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "accessToken", "a1"))
		v, ok, err := store.Get(ctx, "accessToken")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "a1", v)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "accessToken", "a2"))
		v, _, err := store.Get(ctx, "accessToken")
		require.NoError(t, err)
		require.Equal(t, "a2", v)
	})

	t.Run("delete is individual", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "refreshToken", "r1"))
		require.NoError(t, store.Delete(ctx, "accessToken"))

		_, ok, err := store.Get(ctx, "accessToken")
		require.NoError(t, err)
		require.False(t, ok)

		v, ok, err := store.Get(ctx, "refreshToken")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "r1", v)
	})

	t.Run("delete missing key", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "never-set"))
	})
}
