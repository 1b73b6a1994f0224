// Package keyring provides the shared key/value state store backing the
// nonce sequencer, the rate limiter and the dead-man switch. The production
// store is Redis; a process-local store serves single-instance deployments
// and tests.
package keyring

import (
	"context"
	"time"
)

// Store is the minimal key/value contract the safety and sequencing
// components need. Implementations must make Incr atomic.
type Store interface {
	// Incr atomically increments the integer at key and returns the new
	// value. A missing key counts as zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a time-to-live on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Close releases the store's resources.
	Close() error
}

// Open returns a Redis-backed store when redisURL is set, otherwise a
// process-local in-memory store.
func Open(ctx context.Context, redisURL string) (Store, error) {
	if redisURL == "" {
		return NewMemory(), nil
	}
	return NewRedis(ctx, redisURL)
}
