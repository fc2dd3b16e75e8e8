package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/testutil"
)

type fakeAuth struct {
	refreshCalls atomic.Int32
	profileCalls atomic.Int32

	refreshFn func(refresh string) (models.Credentials, error)
	profileFn func(access string) (models.Profile, error)
}

func (f *fakeAuth) Refresh(_ context.Context, refresh string) (models.Credentials, error) {
	f.refreshCalls.Add(1)
	if f.refreshFn == nil {
		return models.Credentials{}, errors.New("refresh not expected")
	}
	return f.refreshFn(refresh)
}

func (f *fakeAuth) Profile(_ context.Context, access string) (models.Profile, error) {
	f.profileCalls.Add(1)
	if f.profileFn == nil {
		return models.Profile{Username: "ada", IsEmailVerified: true}, nil
	}
	return f.profileFn(access)
}

func TestManager(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	newManager := func(store CredentialStore, auth AuthClient) *Manager {
		cfg := Config{Now: func() time.Time { return now }}
		return NewManager("sid-1", cfg, store, auth, NewDecoder(DecoderConfig{}), logger.NewNoOpLogger())
	}

	validAccess := func(t *testing.T) string {
		return testutil.AccessToken(t, "42", "ada", now.Add(5*time.Minute))
	}

	t.Run("IsValid", func(t *testing.T) {
		t.Run("absent", func(t *testing.T) {
			m := newManager(NewMemoryStore(), &fakeAuth{})
			require.False(t, m.IsValid(t.Context()))
		})

		t.Run("malformed", func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: "not-a-jwt", Refresh: "r"}))

			m := newManager(store, &fakeAuth{})
			require.False(t, m.IsValid(t.Context()))
		})

		t.Run("expiry equals now", func(t *testing.T) {
			store := NewMemoryStore()
			access := testutil.AccessToken(t, "42", "ada", now)
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: access, Refresh: "r"}))

			m := newManager(store, &fakeAuth{})
			require.False(t, m.IsValid(t.Context()), "token expiring right now is not valid")
		})

		t.Run("expiry in future", func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: validAccess(t), Refresh: "r"}))
			auth := &fakeAuth{}

			m := newManager(store, auth)
			require.True(t, m.IsValid(t.Context()))
			m.Wait()

			id := m.Identity()
			require.True(t, id.Authenticated)
			require.Equal(t, "42", id.Subject)
			require.NotNil(t, id.Profile, "profile has to be refreshed in background")
			require.Equal(t, int32(0), auth.refreshCalls.Load(), "IsValid never refreshes")
		})
	})

	t.Run("EnsureValid", func(t *testing.T) {
		t.Run("valid returned as is", func(t *testing.T) {
			store := NewMemoryStore()
			creds := models.Credentials{Access: validAccess(t), Refresh: "r"}
			require.NoError(t, store.Save(t.Context(), "sid-1", creds))
			auth := &fakeAuth{}
			m := newManager(store, auth)

			got, err := m.EnsureValid(t.Context())
			m.Wait()

			require.NoError(t, err)
			require.Equal(t, creds, got)
			require.Equal(t, int32(0), auth.refreshCalls.Load())
		})

		t.Run("absent", func(t *testing.T) {
			m := newManager(NewMemoryStore(), &fakeAuth{})

			_, err := m.EnsureValid(t.Context())
			require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
		})

		t.Run("expired and refresh rejected", func(t *testing.T) {
			store := NewMemoryStore()
			expired := testutil.AccessToken(t, "42", "ada", now.Add(-10*time.Second))
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: expired, Refresh: "r"}))
			auth := &fakeAuth{
				refreshFn: func(string) (models.Credentials, error) {
					return models.Credentials{}, errors.New("401 token is blacklisted")
				},
			}
			m := newManager(store, auth)

			_, err := m.EnsureValid(t.Context())

			require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
			require.Equal(t, int32(1), auth.refreshCalls.Load(), "refresh has to be attempted")
			_, err = store.Load(t.Context(), "sid-1")
			require.ErrorIs(t, err, apperrors.ErrCredentialsNotFound, "both tokens must be cleared")
			require.False(t, m.Identity().Authenticated)
		})

		t.Run("expired and refreshed", func(t *testing.T) {
			store := NewMemoryStore()
			expired := testutil.AccessToken(t, "42", "ada", now.Add(-time.Minute))
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: expired, Refresh: "r-1"}))
			fresh := validAccess(t)
			auth := &fakeAuth{
				refreshFn: func(refresh string) (models.Credentials, error) {
					require.Equal(t, "r-1", refresh)
					return models.Credentials{Access: fresh}, nil
				},
			}
			m := newManager(store, auth)

			got, err := m.EnsureValid(t.Context())
			m.Wait()

			require.NoError(t, err)
			require.Equal(t, models.Credentials{Access: fresh, Refresh: "r-1"}, got, "refresh token kept when not rotated")
			stored, err := store.Load(t.Context(), "sid-1")
			require.NoError(t, err)
			require.Equal(t, got, stored)
			require.True(t, m.Identity().Authenticated)
		})

		t.Run("expired without refresh", func(t *testing.T) {
			store := NewMemoryStore()
			expired := testutil.AccessToken(t, "42", "ada", now.Add(-time.Minute))
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: expired}))
			auth := &fakeAuth{}
			m := newManager(store, auth)

			_, err := m.EnsureValid(t.Context())

			require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
			require.Equal(t, int32(0), auth.refreshCalls.Load())
		})

		t.Run("malformed revoked", func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: "broken", Refresh: "r"}))
			m := newManager(store, &fakeAuth{})

			_, err := m.EnsureValid(t.Context())

			require.ErrorIs(t, err, apperrors.ErrUnauthenticated, "malformed token is not a hard error")
			_, err = store.Load(t.Context(), "sid-1")
			require.ErrorIs(t, err, apperrors.ErrCredentialsNotFound)
		})

		t.Run("concurrent callers share one refresh", func(t *testing.T) {
			store := NewMemoryStore()
			expired := testutil.AccessToken(t, "42", "ada", now.Add(-time.Minute))
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: expired, Refresh: "r"}))
			fresh := validAccess(t)
			release := make(chan struct{})
			auth := &fakeAuth{
				refreshFn: func(string) (models.Credentials, error) {
					<-release
					return models.Credentials{Access: fresh, Refresh: "r-2"}, nil
				},
			}
			m := newManager(store, auth)

			var wg sync.WaitGroup
			results := make([]models.Credentials, 10)
			errs := make([]error, 10)
			for i := range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i], errs[i] = m.EnsureValid(context.Background())
				}()
			}

			require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)
			close(release)
			wg.Wait()
			m.Wait()

			require.Equal(t, int32(1), auth.refreshCalls.Load(), "only one refresh may be in flight")
			for i := range 10 {
				require.NoError(t, errs[i])
				require.Equal(t, fresh, results[i].Access)
			}
		})
	})

	t.Run("Establish", func(t *testing.T) {
		store := NewMemoryStore()
		m := newManager(store, &fakeAuth{})

		id, err := m.Establish(t.Context(), models.Credentials{Access: validAccess(t), Refresh: "r"})
		m.Wait()

		require.NoError(t, err)
		require.True(t, id.Authenticated)
		require.Equal(t, "ada", id.Username)
		_, err = store.Load(t.Context(), "sid-1")
		require.NoError(t, err)

		_, err = m.Establish(t.Context(), models.Credentials{Access: "broken"})
		require.ErrorIs(t, err, apperrors.ErrUnauthenticated, "unusable credentials are not stored")
	})

	t.Run("Revoke", func(t *testing.T) {
		store := NewMemoryStore()
		m := newManager(store, &fakeAuth{})
		_, err := m.Establish(t.Context(), models.Credentials{Access: validAccess(t), Refresh: "r"})
		require.NoError(t, err)
		m.Wait()

		require.NoError(t, m.Revoke(t.Context()))

		id := m.Identity()
		require.False(t, id.Authenticated)
		require.Empty(t, id.Username)
		require.Nil(t, id.Profile, "cached profile must be dropped")
		_, err = store.Load(t.Context(), "sid-1")
		require.ErrorIs(t, err, apperrors.ErrCredentialsNotFound)
	})

	t.Run("Profile", func(t *testing.T) {
		t.Run("cached", func(t *testing.T) {
			store := NewMemoryStore()
			auth := &fakeAuth{}
			m := newManager(store, auth)
			_, err := m.Establish(t.Context(), models.Credentials{Access: validAccess(t), Refresh: "r"})
			require.NoError(t, err)
			m.Wait()

			p, err := m.Profile(t.Context())
			m.Wait()

			require.NoError(t, err)
			require.True(t, p.IsEmailVerified)
			require.Equal(t, int32(1), auth.profileCalls.Load(), "fresh profile must not be fetched again")
		})

		t.Run("RefreshProfile bypasses cache", func(t *testing.T) {
			var verified atomic.Bool
			auth := &fakeAuth{
				profileFn: func(string) (models.Profile, error) {
					return models.Profile{Username: "ada", IsEmailVerified: verified.Load()}, nil
				},
			}
			m := newManager(NewMemoryStore(), auth)
			_, err := m.Establish(t.Context(), models.Credentials{Access: validAccess(t), Refresh: "r"})
			require.NoError(t, err)
			m.Wait()

			p, err := m.Profile(t.Context())
			require.NoError(t, err)
			require.False(t, p.IsEmailVerified)

			verified.Store(true)
			p, err = m.RefreshProfile(t.Context())
			m.Wait()

			require.NoError(t, err)
			require.True(t, p.IsEmailVerified)
			require.True(t, m.Identity().Profile.IsEmailVerified, "cache replaced")
		})

		t.Run("rejected token revokes", func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Save(t.Context(), "sid-1", models.Credentials{Access: validAccess(t), Refresh: "r"}))
			auth := &fakeAuth{
				profileFn: func(string) (models.Profile, error) {
					return models.Profile{}, apperrors.ErrUnauthenticated
				},
			}
			m := newManager(store, auth)

			_, err := m.fetchProfile(t.Context(), validAccess(t))
			m.Wait()

			require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
			_, err = store.Load(t.Context(), "sid-1")
			require.ErrorIs(t, err, apperrors.ErrCredentialsNotFound)
		})
	})
}

func TestRegistry(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Clock moved by tests while eviction runs in background
	newRegistry := func(store CredentialStore, rcfg RegistryConfig) (*Registry, func(time.Duration)) {
		var elapsed atomic.Int64
		cfg := Config{Now: func() time.Time { return start.Add(time.Duration(elapsed.Load())) }}
		advance := func(d time.Duration) { elapsed.Add(int64(d)) }
		return NewRegistry(cfg, rcfg, store, &fakeAuth{}, NewDecoder(DecoderConfig{}), logger.NewNoOpLogger()), advance
	}

	size := func(r *Registry) int {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.managers)
	}

	t.Run("one manager per session", func(t *testing.T) {
		r, _ := newRegistry(NewMemoryStore(), RegistryConfig{})

		require.Same(t, r.Get("a"), r.Get("a"), "same session id must share manager")
		require.NotSame(t, r.Get("a"), r.Get("b"))
		require.Equal(t, "b", r.Get("b").ID())
		r.Wait()
	})

	t.Run("idle managers evicted", func(t *testing.T) {
		r, advance := newRegistry(NewMemoryStore(), RegistryConfig{IdleTTL: time.Minute})

		a := r.Get("a")
		r.Get("b")
		advance(30 * time.Second)
		require.Same(t, a, r.Get("a"))
		advance(45 * time.Second)

		require.Equal(t, 1, r.Evict(), "only b idle for a minute")
		require.Equal(t, 1, size(r))
		require.Same(t, a, r.Get("a"))

		advance(time.Hour)
		require.Equal(t, 1, r.Evict())
		require.Zero(t, size(r))
		require.NotSame(t, a, r.Get("a"), "evicted session gets new manager")
	})

	t.Run("evicted session keeps credentials", func(t *testing.T) {
		store := NewMemoryStore()
		r, advance := newRegistry(store, RegistryConfig{IdleTTL: time.Minute})
		access := testutil.AccessToken(t, "42", "ada", start.Add(24*time.Hour))
		_, err := r.Get("a").Establish(t.Context(), models.Credentials{Access: access, Refresh: "r"})
		require.NoError(t, err)
		r.Wait()

		advance(2 * time.Minute)
		require.Equal(t, 1, r.Evict())

		require.True(t, r.Get("a").IsValid(t.Context()))
		r.Wait()
	})

	t.Run("revoked manager dropped", func(t *testing.T) {
		r, _ := newRegistry(NewMemoryStore(), RegistryConfig{})
		m := r.Get("a")
		r.Get("b")

		require.NoError(t, m.Revoke(t.Context()))

		require.Equal(t, 1, size(r))
		require.NotSame(t, m, r.Get("a"))
	})

	t.Run("RunEviction", func(t *testing.T) {
		r, advance := newRegistry(NewMemoryStore(), RegistryConfig{IdleTTL: time.Minute, EvictInterval: 10 * time.Millisecond})
		for i := range 100 {
			r.Get(fmt.Sprintf("cookieless-%d", i))
		}
		advance(time.Hour)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := r.RunEviction(ctx)

		require.Eventually(t, func() bool { return size(r) == 0 }, time.Second, 10*time.Millisecond)

		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("eviction must stop on context cancel")
		}
	})
}
