package token

import (
	"context"
	"sync"

	"outpost/internal/auth/models"
)

// InMemoryTokenStore keeps token records per user identity.
// It intentionally favors clarity over performance.
type InMemoryTokenStore struct {
	mu      sync.RWMutex
	records map[string]*models.TokenRecord
}

func New() *InMemoryTokenStore {
	return &InMemoryTokenStore{records: make(map[string]*models.TokenRecord)}
}

// Get returns a copy of the user's token record, or nil when absent.
func (s *InMemoryTokenStore) Get(_ context.Context, userID string) (*models.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.records[userID]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, nil
}

// Put stores the record, replacing any existing one wholesale.
func (s *InMemoryTokenStore) Put(_ context.Context, record *models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.records[record.UserID] = &copied
	return nil
}

// Delete removes the user's token record. Deleting an absent record is a no-op.
func (s *InMemoryTokenStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
	return nil
}
