package cache

import (
	"context"
	"sync"
	"time"

	"skubridge-integration-layer/internal/ports"
)

// InMemoryIdempotencyStore implements IdempotencyStore with a local
// map. Suitable for tests and single-instance deployments; entries are
// reaped by a background sweep.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

// NewInMemoryIdempotencyStore creates an in-memory idempotency store
// with a periodic sweep of expired entries.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// MarkProcessed marks the key as processed, returning true when the
// key was newly set.
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.entries[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	s.entries[key] = time.Now().Add(ttl)
	return true, nil
}

// IsProcessed reports whether the key has been processed within the
// dedup window.
func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[key]
	return ok && time.Now().Before(expiry), nil
}

// Close stops the background sweep.
func (s *InMemoryIdempotencyStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *InMemoryIdempotencyStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, expiry := range s.entries {
				if now.After(expiry) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

var _ ports.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
