package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryIdempotencyStore implements IdempotencyStore with ttlcache.
// Suitable for development and tests; reservations are per-process, so
// production deployments with more than one instance need the redis
// implementation.
type MemoryIdempotencyStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, string]
}

// NewMemoryIdempotencyStore creates an in-memory store with automatic
// cleanup of expired reservations.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	return &MemoryIdempotencyStore{cache: cache}
}

// SetIfAbsent implements IdempotencyStore.SetIfAbsent. The mutex makes
// the check-then-set atomic within the process.
func (s *MemoryIdempotencyStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Get(key) != nil {
		return false, nil
	}
	s.cache.Set(key, value, ttl)
	return true, nil
}

// Delete implements IdempotencyStore.Delete.
func (s *MemoryIdempotencyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}

// Stop halts the background cleanup goroutine.
func (s *MemoryIdempotencyStore) Stop() {
	s.cache.Stop()
}

var _ IdempotencyStore = (*MemoryIdempotencyStore)(nil)
