// Package cache provides the idempotency stores that keep webhook
// redeliveries from being applied twice.
package cache

import (
	"context"
	"fmt"
	"time"

	"skubridge-integration-layer/internal/ports"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "skubridge:webhook:"

// RedisIdempotencyStore implements IdempotencyStore on Redis. SET NX
// with a TTL gives the atomic mark-if-new the pipeline needs; the TTL
// bounds memory for the dedup window.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
func NewRedisIdempotencyStore(client *redis.Client) ports.IdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// MarkProcessed marks the key as processed, returning true when the
// key was newly set.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	return set, nil
}

// IsProcessed reports whether the key has been processed within the
// dedup window.
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event dedup key: %w", err)
	}
	return n > 0, nil
}
