package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
)

const DefaultTTL = 7 * 24 * time.Hour

// CredentialStore keeps session credentials in redis so they survive restarts
type CredentialStore struct {
	client *redis.Client
	ttl    time.Duration
}

// ttl <= 0 means DefaultTTL
func NewCredentialStore(client *redis.Client, ttl time.Duration) *CredentialStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CredentialStore{client: client, ttl: ttl}
}

func (s *CredentialStore) Load(ctx context.Context, sid string) (models.Credentials, error) {
	var creds models.Credentials

	data, err := s.client.Get(ctx, key(sid)).Bytes()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return creds, apperrors.ErrCredentialsNotFound
	default:
		return creds, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("unmarshal credentials failed: %w", err)
	}
	return creds, nil
}

func (s *CredentialStore) Save(ctx context.Context, sid string, creds models.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials failed: %w", err)
	}

	if err := s.client.Set(ctx, key(sid), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, key(sid)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func key(sid string) string {
	return "session:" + sid
}
