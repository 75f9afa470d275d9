package window

import (
	"context"
	"sync/atomic"
	"time"

	"outpost/internal/ratelimit/models"
	"outpost/pkg/requestcontext"
)

// InMemoryWindowStore implements the global request-count window with atomic
// counters. The window is a tumbling window: when it expires, the count resets
// to zero and the window start advances to the observing request's time.
//
// The expired-window reset is guarded by a reset-in-progress flag rather than
// a lock: the first requester to observe expiry claims the flag, re-validates
// that another reset has not just completed, performs the reset, and releases
// the flag. Concurrent requesters that lose the claim evaluate whatever state
// they observe. This is a best-effort guard adequate for an advisory ceiling;
// exact precision under extreme concurrency is not guaranteed.
type InMemoryWindowStore struct {
	limit  int
	window time.Duration

	count       atomic.Int64
	windowStart atomic.Int64 // unix nanos
	resetting   atomic.Bool
}

// Option configures the store.
type Option func(*InMemoryWindowStore)

// WithLimit sets the per-window admission limit.
func WithLimit(limit int) Option {
	return func(s *InMemoryWindowStore) {
		s.limit = limit
	}
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(s *InMemoryWindowStore) {
		s.window = d
	}
}

// New creates a global window store with default limits (100 requests/minute).
func New(opts ...Option) *InMemoryWindowStore {
	s := &InMemoryWindowStore{
		limit:  100,
		window: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.windowStart.Store(time.Now().UnixNano())
	return s
}

// Admit attempts to admit one request. It rolls the window over when expired,
// then check-and-increments the counter with CAS so the count never exceeds
// the limit, even momentarily, and a rejected attempt leaves it unchanged.
// resetAt is when the current window rolls over.
func (s *InMemoryWindowStore) Admit(ctx context.Context) (count int, resetAt time.Time, allowed bool, err error) {
	now := requestcontext.Now(ctx)
	s.maybeReset(now)

	n, blocked := s.tryIncrementWithLimit(int64(s.limit))
	start := time.Unix(0, s.windowStart.Load())
	return int(n), start.Add(s.window), !blocked, nil
}

// Snapshot returns the current window state for inspection.
func (s *InMemoryWindowStore) Snapshot(ctx context.Context) (models.WindowSnapshot, error) {
	now := requestcontext.Now(ctx)
	start := time.Unix(0, s.windowStart.Load())
	current := int(s.count.Load())
	if now.Sub(start) > s.window {
		// Expired but not yet rolled over; effective count is zero.
		current = 0
	}
	return models.WindowSnapshot{
		LimitPerWindow: s.limit,
		CurrentCount:   current,
		WindowStart:    start,
	}, nil
}

// maybeReset performs the guarded window rollover described on the type.
func (s *InMemoryWindowStore) maybeReset(now time.Time) {
	start := time.Unix(0, s.windowStart.Load())
	if now.Sub(start) <= s.window {
		return
	}
	if !s.resetting.CompareAndSwap(false, true) {
		// Another requester holds the reset; evaluate pre-reset state as-is.
		return
	}
	defer s.resetting.Store(false)

	// Re-validate: a reset may have completed between our stale check and the
	// flag claim. Only reset if the window is still expired.
	start = time.Unix(0, s.windowStart.Load())
	if now.Sub(start) > s.window {
		s.count.Store(0)
		s.windowStart.Store(now.UnixNano())
	}
}

// tryIncrementWithLimit atomically increments the counter only if it is below
// the limit. The CAS loop ensures a rejected attempt never mutates the count.
func (s *InMemoryWindowStore) tryIncrementWithLimit(limit int64) (count int64, blocked bool) {
	for {
		current := s.count.Load()
		if current >= limit {
			return current, true
		}
		if s.count.CompareAndSwap(current, current+1) {
			return current + 1, false
		}
		// CAS lost to a concurrent admit, retry.
	}
}
