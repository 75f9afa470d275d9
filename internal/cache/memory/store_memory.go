package memory

import (
	"context"
	"sync"
	"time"

	"outpost/pkg/requestcontext"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is an in-memory TTL cache. Expired entries are skipped on read and
// reclaimed by Sweep, which the process entry point runs on a ticker.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || requestcontext.Now(ctx).After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:     value,
		expiresAt: requestcontext.Now(ctx).Add(ttl),
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep removes expired entries and returns how many were reclaimed.
func (s *Store) Sweep(ctx context.Context) int {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
