// Package cache holds the idempotency reservation store used to
// suppress duplicate webhook deliveries.
package cache

import (
	"context"
	"time"
)

// IdempotencyStore is an atomic claim-once marker store. SetIfAbsent
// reserves key for ttl and reports whether this caller won the
// reservation; Delete releases it early so a redelivery can re-attempt.
type IdempotencyStore interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
