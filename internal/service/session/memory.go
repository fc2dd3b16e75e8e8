package session

import (
	"context"
	"sync"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
)

// MemoryStore keeps credentials in process memory
// Used when no redis configured and in tests
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]models.Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]models.Credentials)}
}

func (s *MemoryStore) Load(_ context.Context, sid string) (models.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.creds[sid]
	if !ok {
		return creds, apperrors.ErrCredentialsNotFound
	}
	return creds, nil
}

func (s *MemoryStore) Save(_ context.Context, sid string, creds models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds[sid] = creds
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.creds, sid)
	return nil
}
