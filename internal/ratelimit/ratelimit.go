// Package ratelimit throttles order mutations per user with a fixed-window
// counter in the shared keyring.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store is the subset of the keyring the limiter needs.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Limiter enforces a maximum number of operations per window per user.
type Limiter struct {
	store  Store
	limit  int64
	window time.Duration
}

// New builds a fixed-window limiter allowing limit operations per window.
func New(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		limit:  int64(limit),
		window: window,
	}
}

// Allow reports whether the user may perform another operation of the
// given action kind in the current window. Each (user, action) pair has
// its own counter; the key expires with the window, so a fresh window
// starts from zero.
func (l *Limiter) Allow(ctx context.Context, userID int64, action string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%d", action, userID)

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit for user %d: %w", userID, err)
	}

	if count == 1 {
		if err := l.store.Expire(ctx, key, l.window); err != nil {
			return false, fmt.Errorf("failed to set rate limit window for user %d: %w", userID, err)
		}
	}

	return count <= l.limit, nil
}
