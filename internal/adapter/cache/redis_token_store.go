package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/isleoflan/sso-server/internal/repository"
)

// RedisTokenStore implements IntermediateTokenStore backed by Redis. Keys
// are scoped per app, so a new login by the same app overwrites the prior
// record (latest wins) and the TTL disposes of stale entries.
type RedisTokenStore struct {
	client redis.UniversalClient
}

var _ repository.IntermediateTokenStore = (*RedisTokenStore)(nil)

// NewRedisTokenStore constructs a Redis-backed intermediate token store.
func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func tokenKey(appID string) string {
	return "intermediate:" + appID
}

// Save stores the minted token record with TTL, replacing any prior record
// for the same app.
func (s *RedisTokenStore) Save(ctx context.Context, record repository.IntermediateTokenRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey(record.AppID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist token record: %w", err)
	}
	return nil
}

// Get loads the current record for the app, or nil when none is live.
func (s *RedisTokenStore) Get(ctx context.Context, appID string) (*repository.IntermediateTokenRecord, error) {
	raw, err := s.client.Get(ctx, tokenKey(appID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load token record: %w", err)
	}
	var record repository.IntermediateTokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode token record: %w", err)
	}
	return &record, nil
}
