package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

// CoverageStore is an in-memory implementation of storage.CoverageStore.
type CoverageStore struct {
	mu    sync.RWMutex
	spans map[domain.StreamKey][]domain.TimeSpan
}

// NewCoverageStore creates a new in-memory coverage store.
func NewCoverageStore() *CoverageStore {
	return &CoverageStore{
		spans: make(map[domain.StreamKey][]domain.TimeSpan),
	}
}

// Verify interface compliance at compile time.
var _ storage.CoverageStore = (*CoverageStore)(nil)

// MergeSpan records span as covered for key, coalescing under tolerance.
func (s *CoverageStore) MergeSpan(_ context.Context, key domain.StreamKey, span domain.TimeSpan, tolerance time.Duration) error {
	if err := key.Validate(); err != nil {
		return storage.ErrInvalidInput
	}
	if !span.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans[key] = domain.InsertSpan(s.spans[key], span, tolerance)
	return nil
}

// SpansInWindow returns coverage spans overlapping window, ordered by start ASC.
func (s *CoverageStore) SpansInWindow(_ context.Context, key domain.StreamKey, window domain.TimeSpan) ([]domain.TimeSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.TimeSpan
	for _, sp := range s.spans[key] {
		if sp.Overlaps(window) {
			result = append(result, sp)
		}
	}
	return result, nil
}

// AllSpans returns every coverage span for key, ordered by start ASC.
func (s *CoverageStore) AllSpans(_ context.Context, key domain.StreamKey) ([]domain.TimeSpan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.TimeSpan, len(s.spans[key]))
	copy(result, s.spans[key])
	return result, nil
}

// Keys returns every stream key with at least one coverage span.
func (s *CoverageStore) Keys(_ context.Context) ([]domain.StreamKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]domain.StreamKey, 0, len(s.spans))
	for k, spans := range s.spans {
		if len(spans) > 0 {
			keys = append(keys, k)
		}
	}

	// Sort for deterministic ordering
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	return keys, nil
}

// Coalesce re-joins spans closer than tolerance across all keys.
func (s *CoverageStore) Coalesce(_ context.Context, tolerance time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, spans := range s.spans {
		s.spans[k] = domain.CoalesceSpans(spans, tolerance)
	}
	return nil
}
