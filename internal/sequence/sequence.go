// Package sequence allocates per-user monotonically increasing nonces for
// signed exchange calls. The counter lives in the shared keyring so every
// process in a deployment draws from the same sequence.
package sequence

import (
	"context"
	"fmt"
	"time"
)

// nonceTTL keeps abandoned user counters from accumulating forever. The
// exchange only requires each nonce to exceed the previous one, so a reset
// after a day of inactivity is harmless.
const nonceTTL = 24 * time.Hour

// Store is the subset of the keyring the sequencer needs.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Sequencer hands out nonces, one atomic increment per call.
type Sequencer struct {
	store Store
}

// New builds a Sequencer on the given store.
func New(store Store) *Sequencer {
	return &Sequencer{store: store}
}

// Next returns the next nonce for the user. Concurrent callers receive
// distinct, strictly increasing values.
func (s *Sequencer) Next(ctx context.Context, userID int64) (int64, error) {
	key := fmt.Sprintf("nonce:%d", userID)

	nonce, err := s.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate nonce for user %d: %w", userID, err)
	}

	// Refresh the TTL on first use so the counter outlives bursts but not
	// long idle stretches.
	if nonce == 1 {
		if err := s.store.Expire(ctx, key, nonceTTL); err != nil {
			return 0, fmt.Errorf("failed to set nonce expiry for user %d: %w", userID, err)
		}
	}

	return nonce, nil
}
