package memory

import (
	"context"
	"sync"

	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

// arrivalKey is the composite key for cached arrival predictions.
type arrivalKey struct {
	EventID string
	Network string
	Station string
}

// ArrivalStore is an in-memory implementation of storage.ArrivalStore.
type ArrivalStore struct {
	mu   sync.RWMutex
	data map[arrivalKey]*domain.ArrivalPrediction
}

// NewArrivalStore creates a new in-memory arrival store.
func NewArrivalStore() *ArrivalStore {
	return &ArrivalStore{
		data: make(map[arrivalKey]*domain.ArrivalPrediction),
	}
}

// Verify interface compliance at compile time.
var _ storage.ArrivalStore = (*ArrivalStore)(nil)

// Put stores a prediction, replacing any existing entry for the same key.
func (s *ArrivalStore) Put(_ context.Context, a *domain.ArrivalPrediction) error {
	if a == nil || a.EventID == "" || a.Network == "" || a.Station == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy
	cp := *a
	s.data[arrivalKey{a.EventID, a.Network, a.Station}] = &cp
	return nil
}

// Get retrieves a cached prediction. Returns ErrNotFound if absent.
func (s *ArrivalStore) Get(_ context.Context, eventID, network, station string) (*domain.ArrivalPrediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[arrivalKey{eventID, network, station}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}
