package quota

import (
	"context"
	"sync"
	"time"

	c "outpost/internal/ratelimit/config"
	"outpost/internal/ratelimit/models"
	"outpost/pkg/requestcontext"
)

// InMemoryQuotaStore keeps per-user action quotas, created lazily on first
// observed usage and seeded with the configured defaults.
type InMemoryQuotaStore struct {
	mu     sync.RWMutex
	quotas map[string]*models.QuotaRecord
	config *c.Config
}

func New(config *c.Config) *InMemoryQuotaStore {
	return &InMemoryQuotaStore{
		quotas: make(map[string]*models.QuotaRecord),
		config: config,
	}
}

// Get returns a copy of the user's quota record, creating it with default
// seeds if absent. Copies keep callers from racing on shared record state.
func (s *InMemoryQuotaStore) Get(ctx context.Context, userID string) (models.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.ensureLocked(ctx, userID), nil
}

// SetCategory overwrites one category wholesale with an authoritative figure
// from the upstream response.
func (s *InMemoryQuotaStore) SetCategory(ctx context.Context, userID string, cat models.QuotaCategory, remaining int, resetAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.ensureLocked(ctx, userID)
	q := models.CategoryQuota{Remaining: remaining, ResetAt: resetAt}
	switch cat {
	case models.CategoryLikes:
		record.Likes = q
	case models.CategorySuperLikes:
		record.SuperLikes = q
	case models.CategoryBoosts:
		record.Boosts = q
	}
	return nil
}

// Decrement lowers the category's remaining count by one, floor zero, without
// touching its reset time. Local optimistic estimate only.
func (s *InMemoryQuotaStore) Decrement(ctx context.Context, userID string, cat models.QuotaCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.ensureLocked(ctx, userID)
	var q *models.CategoryQuota
	switch cat {
	case models.CategoryLikes:
		q = &record.Likes
	case models.CategorySuperLikes:
		q = &record.SuperLikes
	case models.CategoryBoosts:
		q = &record.Boosts
	default:
		return nil
	}
	if q.Remaining > 0 {
		q.Remaining--
	}
	return nil
}

// ensureLocked creates the record with generous default seeds when absent.
// Callers must hold the write lock.
func (s *InMemoryQuotaStore) ensureLocked(ctx context.Context, userID string) *models.QuotaRecord {
	if record, exists := s.quotas[userID]; exists {
		return record
	}

	now := requestcontext.Now(ctx)
	defaults := s.config.QuotaDefaults
	record := &models.QuotaRecord{
		UserID:     userID,
		Likes:      models.CategoryQuota{Remaining: defaults.Likes, ResetAt: now.Add(defaults.ResetHorizon)},
		SuperLikes: models.CategoryQuota{Remaining: defaults.SuperLikes, ResetAt: now.Add(defaults.ResetHorizon)},
		Boosts:     models.CategoryQuota{Remaining: defaults.Boosts, ResetAt: now.Add(defaults.ResetHorizon)},
	}
	s.quotas[userID] = record
	return record
}
