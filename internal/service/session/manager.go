package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultProfileTTL     = time.Minute
)

// Where credentials live between requests
type CredentialStore interface {
	// Must return apperrors.ErrCredentialsNotFound if nothing stored for the session
	Load(ctx context.Context, sid string) (models.Credentials, error)
	Save(ctx context.Context, sid string, creds models.Credentials) error
	Delete(ctx context.Context, sid string) error
}

// Auth endpoints of the commerce API
// Called directly with explicit tokens, never through the request gateway
type AuthClient interface {
	Refresh(ctx context.Context, refresh string) (models.Credentials, error)
	Profile(ctx context.Context, access string) (models.Profile, error)
}

type Config struct {
	// Bound for refresh and profile calls
	RequestTimeout time.Duration

	// How long a fetched profile is fresh enough to skip background refresh
	ProfileTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

// Manager owns credentials of one browser session
type Manager struct {
	id      string
	store   CredentialStore
	auth    AuthClient
	decoder *Decoder
	logger  logger.Logger

	now        func() time.Time
	timeout    time.Duration
	profileTTL time.Duration

	// One in-flight refresh per session, others wait for its result
	refreshGroup singleflight.Group

	mu               sync.Mutex
	identity         models.Identity
	profileFetchedAt time.Time
	// Incremented on every revoke so late profile responses are dropped
	generation uint64

	profileInFlight atomic.Bool
	wg              sync.WaitGroup

	// Set by Registry to drop the manager once revoked
	onRevoke func(*Manager)
}

func NewManager(sid string, cfg Config, store CredentialStore, auth AuthClient, decoder *Decoder, l logger.Logger) *Manager {
	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.RequestTimeout, defaultRequestTimeout)
	setDefaultDuration(&cfg.ProfileTTL, defaultProfileTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		id:         sid,
		store:      store,
		auth:       auth,
		decoder:    decoder,
		logger:     l.With("session", shortID(sid)),
		now:        cfg.Now,
		timeout:    cfg.RequestTimeout,
		profileTTL: cfg.ProfileTTL,
	}
}

func (m *Manager) ID() string {
	return m.id
}

// IsValid reports whether stored access credential decodes and is not expired
// Never refreshes
func (m *Manager) IsValid(ctx context.Context) bool {
	creds, err := m.store.Load(ctx, m.id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCredentialsNotFound) {
			m.logger.Warn("credentials load failed", "error", err)
		}
		return false
	}

	claims, ok := m.checkAccess(creds.Access)
	if ok {
		m.validated(creds, claims)
	}
	return ok
}

// EnsureValid returns usable credentials, refreshing expired access if possible
// On any failure the session is revoked and apperrors.ErrUnauthenticated returned
func (m *Manager) EnsureValid(ctx context.Context) (models.Credentials, error) {
	creds, err := m.store.Load(ctx, m.id)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrCredentialsNotFound):
		m.resetIdentity()
		return creds, apperrors.ErrUnauthenticated
	default:
		m.logger.Warn("credentials load failed", "error", err)
		return creds, apperrors.ErrUnauthenticated
	}

	claims, err := m.decoder.Decode(creds.Access)
	if err != nil {
		m.logger.Info("malformed access token, revoking", "error", err)
		_ = m.Revoke(ctx)
		return models.Credentials{}, apperrors.ErrUnauthenticated
	}

	if claims.ExpiresAt.After(m.now()) {
		m.validated(creds, claims)
		return creds, nil
	}

	if creds.Refresh == "" {
		_ = m.Revoke(ctx)
		return models.Credentials{}, apperrors.ErrUnauthenticated
	}

	res, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return models.Credentials{}, err
	}
	return res.(models.Credentials), nil
}

// Shared by all callers waiting on the same flight, so not bound to the first caller context
func (m *Manager) refresh(ctx context.Context) (models.Credentials, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	current, err := m.store.Load(ctx, m.id)
	if err != nil {
		m.logger.Info("credentials gone before refresh", "error", err)
		m.resetIdentity()
		return models.Credentials{}, apperrors.ErrUnauthenticated
	}

	// Refreshed by another process meanwhile
	if claims, ok := m.checkAccess(current.Access); ok {
		m.validated(current, claims)
		return current, nil
	}

	fresh, err := m.auth.Refresh(ctx, current.Refresh)
	if err != nil {
		m.logger.Info("refresh failed, revoking", "error", err)
		_ = m.Revoke(ctx)
		return models.Credentials{}, apperrors.ErrUnauthenticated
	}
	if fresh.Refresh == "" {
		fresh.Refresh = current.Refresh
	}

	claims, ok := m.checkAccess(fresh.Access)
	if !ok {
		m.logger.Warn("refresh returned unusable access token, revoking")
		_ = m.Revoke(ctx)
		return models.Credentials{}, apperrors.ErrUnauthenticated
	}

	if err := m.store.Save(ctx, m.id, fresh); err != nil {
		m.logger.Error("saving refreshed credentials failed, revoking", "error", err)
		_ = m.Revoke(ctx)
		return models.Credentials{}, apperrors.ErrUnauthenticated
	}

	m.logger.Debug("access token refreshed", "expires_at", claims.ExpiresAt)
	m.validated(fresh, claims)
	return fresh, nil
}

// Establish stores freshly issued credentials (login, registration)
func (m *Manager) Establish(ctx context.Context, creds models.Credentials) (models.Identity, error) {
	claims, ok := m.checkAccess(creds.Access)
	if !ok {
		return models.Identity{}, apperrors.ErrUnauthenticated
	}

	if err := m.store.Save(ctx, m.id, creds); err != nil {
		return models.Identity{}, err
	}

	m.mu.Lock()
	if m.identity.Subject != claims.Subject {
		m.identity.Profile = nil
		m.profileFetchedAt = time.Time{}
	}
	m.mu.Unlock()

	m.validated(creds, claims)
	return m.Identity(), nil
}

// Revoke deletes both credentials and forgets who the session belonged to
func (m *Manager) Revoke(ctx context.Context) error {
	m.resetIdentity()

	if err := m.store.Delete(context.WithoutCancel(ctx), m.id); err != nil {
		m.logger.Error("credentials delete failed", "error", err)
		return err
	}

	if m.onRevoke != nil {
		m.onRevoke(m)
	}
	return nil
}

// Identity returns a copy of the in-memory identity
func (m *Manager) Identity() models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.identity
	if id.Profile != nil {
		p := *id.Profile
		id.Profile = &p
	}
	return id
}

// Profile returns cached profile or fetches it synchronously
func (m *Manager) Profile(ctx context.Context) (models.Profile, error) {
	creds, err := m.EnsureValid(ctx)
	if err != nil {
		return models.Profile{}, err
	}

	if id := m.Identity(); id.Profile != nil {
		return *id.Profile, nil
	}

	return m.fetchProfile(ctx, creds.Access)
}

// RefreshProfile skips the cache and replaces it with what the commerce API returns
func (m *Manager) RefreshProfile(ctx context.Context) (models.Profile, error) {
	creds, err := m.EnsureValid(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	return m.fetchProfile(ctx, creds.Access)
}

func (m *Manager) fetchProfile(ctx context.Context, access string) (models.Profile, error) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	profile, err := m.auth.Profile(ctx, access)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthenticated) {
			_ = m.Revoke(ctx)
		}
		return profile, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen && m.identity.Authenticated {
		m.identity.Profile = &profile
		m.identity.Username = profile.Username
		m.profileFetchedAt = m.now()
	}
	return profile, nil
}

// Background profile refresh still running
func (m *Manager) busy() bool {
	return m.profileInFlight.Load()
}

// Wait blocks until background profile refreshes finish
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) checkAccess(access string) (models.AccessClaims, bool) {
	claims, err := m.decoder.Decode(access)
	if err != nil {
		return claims, false
	}
	return claims, claims.ExpiresAt.After(m.now())
}

// Record identity and kick background profile refresh
func (m *Manager) validated(creds models.Credentials, claims models.AccessClaims) {
	m.mu.Lock()
	m.identity.Authenticated = true
	m.identity.Subject = claims.Subject
	if claims.Username != "" {
		m.identity.Username = claims.Username
	}
	stale := m.now().Sub(m.profileFetchedAt) >= m.profileTTL
	m.mu.Unlock()

	if stale {
		m.refreshProfileAsync(creds.Access)
	}
}

// Best effort: failures only logged
func (m *Manager) refreshProfileAsync(access string) {
	if !m.profileInFlight.CompareAndSwap(false, true) {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.profileInFlight.Store(false)

		if _, err := m.fetchProfile(context.Background(), access); err != nil {
			m.logger.Debug("background profile refresh failed", "error", err)
		}
	}()
}

func (m *Manager) resetIdentity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.identity = models.Identity{}
	m.profileFetchedAt = time.Time{}
	m.generation++
}

func shortID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}
