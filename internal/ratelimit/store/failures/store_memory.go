package failures

import (
	"context"
	"sync"
	"time"

	"outpost/internal/ratelimit/models"
	"outpost/pkg/requestcontext"
)

// InMemoryFailureStore tracks validation failures per (identifier, endpoint)
// pair for abuse-rate detection. Occurrences older than the retention window
// are pruned on every write, which is the record's implicit reset.
type InMemoryFailureStore struct {
	mu        sync.Mutex
	records   map[string]*models.FailureRecord
	retention time.Duration
}

// Option configures the store.
type Option func(*InMemoryFailureStore)

// WithRetention sets how long failure occurrences stay counted. Default 1h.
func WithRetention(d time.Duration) Option {
	return func(s *InMemoryFailureStore) {
		s.retention = d
	}
}

func New(opts ...Option) *InMemoryFailureStore {
	s := &InMemoryFailureStore{
		records:   make(map[string]*models.FailureRecord),
		retention: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record registers one validation failure for the pair and returns how many
// failures fall inside the retention window and inside the last minute,
// including this one.
func (s *InMemoryFailureStore) Record(ctx context.Context, identifier, endpoint string) (inWindow, inLastMinute int, err error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := identifier + "|" + endpoint
	record, exists := s.records[key]
	if !exists || now.Sub(record.LastFailureAt) > s.retention {
		record = &models.FailureRecord{
			Identifier: identifier,
			Endpoint:   endpoint,
		}
		s.records[key] = record
	}

	record.Occurrences = append(pruneOlder(record.Occurrences, now.Add(-s.retention)), now)
	record.FailureCount = len(record.Occurrences)
	record.LastFailureAt = now

	minuteAgo := now.Add(-time.Minute)
	for _, t := range record.Occurrences {
		if t.After(minuteAgo) {
			inLastMinute++
		}
	}
	return record.FailureCount, inLastMinute, nil
}

// Get returns the record for the pair, or nil when absent.
func (s *InMemoryFailureStore) Get(_ context.Context, identifier, endpoint string) (*models.FailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, exists := s.records[identifier+"|"+endpoint]; exists {
		copied := *record
		return &copied, nil
	}
	return nil, nil
}

func pruneOlder(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
