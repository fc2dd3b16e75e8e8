package session

import (
	"context"
	"sync"
	"time"

	"github.com/nkiryanov/storefront/internal/logger"
)

const (
	defaultIdleTTL       = 30 * time.Minute
	defaultEvictInterval = time.Minute
)

type RegistryConfig struct {
	// Manager not asked for that long is dropped; credentials stay in the store
	IdleTTL time.Duration

	// How often idle managers are swept
	EvictInterval time.Duration
}

type registryEntry struct {
	m        *Manager
	lastUsed time.Time
}

// Registry hands out one Manager per session id so refresh serialization holds across requests
type Registry struct {
	cfg     Config
	rcfg    RegistryConfig
	now     func() time.Time
	store   CredentialStore
	auth    AuthClient
	decoder *Decoder
	logger  logger.Logger

	mu       sync.Mutex
	managers map[string]*registryEntry
}

func NewRegistry(cfg Config, rcfg RegistryConfig, store CredentialStore, auth AuthClient, decoder *Decoder, l logger.Logger) *Registry {
	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&rcfg.IdleTTL, defaultIdleTTL)
	setDefaultDuration(&rcfg.EvictInterval, defaultEvictInterval)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Registry{
		cfg:      cfg,
		rcfg:     rcfg,
		now:      now,
		store:    store,
		auth:     auth,
		decoder:  decoder,
		logger:   l,
		managers: make(map[string]*registryEntry),
	}
}

func (r *Registry) Get(sid string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.managers[sid]
	if !ok {
		m := NewManager(sid, r.cfg, r.store, r.auth, r.decoder, r.logger)
		m.onRevoke = r.release
		e = &registryEntry{m: m}
		r.managers[sid] = e
	}
	e.lastUsed = r.now()
	return e.m
}

// Evict drops managers idle for IdleTTL or longer and returns how many were dropped
func (r *Registry) Evict() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for sid, e := range r.managers {
		if now.Sub(e.lastUsed) < r.rcfg.IdleTTL || e.m.busy() {
			continue
		}
		delete(r.managers, sid)
		evicted++
	}
	return evicted
}

// RunEviction sweeps idle managers until ctx is cancelled; the channel closes when it stops
func (r *Registry) RunEviction(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(r.rcfg.EvictInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Evict(); n > 0 {
					r.logger.Debug("idle sessions evicted", "count", n)
				}
			}
		}
	}()

	return stopped
}

// Revoked session has nothing worth keeping in memory
func (r *Registry) release(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.managers[m.id]; ok && e.m == m && !m.busy() {
		delete(r.managers, m.id)
	}
}

// Wait for background work of every manager
func (r *Registry) Wait() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, e := range r.managers {
		managers = append(managers, e.m)
	}
	r.mu.Unlock()

	for _, m := range managers {
		m.Wait()
	}
}
