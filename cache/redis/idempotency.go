package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.homestash.io/api/cache"
)

// IdempotencyStore implements cache.IdempotencyStore using Redis, so
// reservations hold across process instances.
type IdempotencyStore struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewIdempotencyStore creates a new [IdempotencyStore] instance.
func NewIdempotencyStore(client *redis.Client, prefix string) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a given reservation key.
func (r *IdempotencyStore) redisKey(key string) string {
	return fmt.Sprintf("%s:idem:%s", r.prefix, key)
}

// SetIfAbsent reserves key atomically with an expiry via SET NX.
func (r *IdempotencyStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.redisKey(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key in Redis: %w", err)
	}
	return ok, nil
}

// Delete releases a reservation.
func (r *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key in Redis: %w", err)
	}
	return nil
}

var _ cache.IdempotencyStore = (*IdempotencyStore)(nil)
