package storage

import (
	"context"
	"time"

	"seisvault/internal/domain"
)

// CoverageStore is the archive index: the authoritative record of which
// time spans are already archived per stream. Implementations keep the
// spans of each key ordered, non-overlapping and coalesced under the
// tolerance passed at write time.
type CoverageStore interface {
	// MergeSpan records span as covered for key, coalescing it with any
	// existing spans that overlap or sit within tolerance. Idempotent:
	// merging the same span twice yields the same coverage.
	MergeSpan(ctx context.Context, key domain.StreamKey, span domain.TimeSpan, tolerance time.Duration) error

	// SpansInWindow returns the coverage spans overlapping window,
	// ordered by start time ASC.
	SpansInWindow(ctx context.Context, key domain.StreamKey, window domain.TimeSpan) ([]domain.TimeSpan, error)

	// AllSpans returns every coverage span for key, ordered by start time ASC.
	AllSpans(ctx context.Context, key domain.StreamKey) ([]domain.TimeSpan, error)

	// Keys returns every stream key with at least one coverage span.
	Keys(ctx context.Context) ([]domain.StreamKey, error)

	// Coalesce re-joins spans closer together than tolerance across the
	// whole archive. Run after bulk imports.
	Coalesce(ctx context.Context, tolerance time.Duration) error
}

// ArrivalStore caches predicted phase arrivals per event/station pair so
// repeated event-mode runs skip recomputation.
type ArrivalStore interface {
	// Put stores a prediction, replacing any existing entry for the same
	// (event_id, network, station).
	Put(ctx context.Context, a *domain.ArrivalPrediction) error

	// Get retrieves a cached prediction. Returns ErrNotFound if absent.
	Get(ctx context.Context, eventID, network, station string) (*domain.ArrivalPrediction, error)
}

// SampleTimeseriesStore mirrors merged sample chunks into a columnar
// store for downstream analysis. The engine treats the mirror as
// best-effort and tolerates its absence.
type SampleTimeseriesStore interface {
	// InsertChunk appends every sample of the chunk.
	InsertChunk(ctx context.Context, chunk *domain.SeriesChunk) error
}
