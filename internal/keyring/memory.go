package keyring

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memoryStore is a process-local Store for single-instance deployments and
// tests. Expiry is checked lazily on access.
type memoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// expiredLocked reports whether key has passed its TTL and removes it if so.
func (s *memoryStore) expiredLocked(key string) bool {
	exp, ok := s.expires[key]
	if !ok || s.now().Before(exp) {
		return false
	}
	delete(s.values, key)
	delete(s.expires, key)
	return true
}

func (s *memoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expiredLocked(key)

	var current int64
	if raw, ok := s.values[key]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current++
	s.values[key] = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; ok {
		s.expires[key] = s.now().Add(ttl)
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expiredLocked(key)

	val, ok := s.values[key]
	return val, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	} else {
		delete(s.expires, key)
	}
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
