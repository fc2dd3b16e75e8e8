package redisstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/testutil"
)

func TestCredentialStore(t *testing.T) {
	t.Run("save and load", func(t *testing.T) {
		rs := testutil.StartRedis(t)
		store := NewCredentialStore(rs.Client, time.Hour)

		err := store.Save(t.Context(), "sid-1", models.Credentials{Access: "a", Refresh: "r"})
		require.NoError(t, err)

		creds, err := store.Load(t.Context(), "sid-1")
		require.NoError(t, err)
		require.Equal(t, models.Credentials{Access: "a", Refresh: "r"}, creds)
		require.Equal(t, time.Hour, rs.Server.TTL("session:sid-1"), "ttl must be set")
	})

	t.Run("load missing", func(t *testing.T) {
		rs := testutil.StartRedis(t)
		store := NewCredentialStore(rs.Client, 0)

		_, err := store.Load(t.Context(), "unknown")
		require.ErrorIs(t, err, apperrors.ErrCredentialsNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		rs := testutil.StartRedis(t)
		store := NewCredentialStore(rs.Client, time.Minute)
		require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: "a", Refresh: "r"}))

		rs.Server.FastForward(2 * time.Minute)

		_, err := store.Load(t.Context(), "sid-1")
		require.ErrorIs(t, err, apperrors.ErrCredentialsNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		rs := testutil.StartRedis(t)
		store := NewCredentialStore(rs.Client, 0)
		require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: "a", Refresh: "r"}))

		require.NoError(t, store.Delete(t.Context(), "sid-1"))
		require.NoError(t, store.Delete(t.Context(), "sid-1"), "deleting twice is fine")

		_, err := store.Load(t.Context(), "sid-1")
		require.ErrorIs(t, err, apperrors.ErrCredentialsNotFound)
	})

	t.Run("broken payload", func(t *testing.T) {
		rs := testutil.StartRedis(t)
		store := NewCredentialStore(rs.Client, 0)
		require.NoError(t, rs.Server.Set("session:sid-1", "not json"))

		_, err := store.Load(t.Context(), "sid-1")
		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrCredentialsNotFound)
	})
}
