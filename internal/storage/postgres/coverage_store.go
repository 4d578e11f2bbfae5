package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

// CoverageStore implements storage.CoverageStore using PostgreSQL.
//
// MergeSpan and Coalesce lock the affected rows (SELECT ... FOR UPDATE)
// so concurrent merges for the same key serialize on the database even
// when callers skip the writer's per-key lock.
type CoverageStore struct {
	pool *Pool
}

// NewCoverageStore creates a new CoverageStore.
func NewCoverageStore(pool *Pool) *CoverageStore {
	return &CoverageStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CoverageStore = (*CoverageStore)(nil)

// MergeSpan records span as covered for key, coalescing under tolerance.
func (s *CoverageStore) MergeSpan(ctx context.Context, key domain.StreamKey, span domain.TimeSpan, tolerance time.Duration) error {
	if err := key.Validate(); err != nil {
		return storage.ErrInvalidInput
	}
	if !span.Valid() {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock every span that would coalesce with the new one.
	query := `
		SELECT span_start, span_end
		FROM archive_span
		WHERE network = $1 AND station = $2 AND location = $3 AND channel = $4
		  AND span_start <= $5 AND span_end >= $6
		ORDER BY span_start ASC
		FOR UPDATE
	`

	reachEnd := span.End.Add(tolerance)
	reachStart := span.Start.Add(-tolerance)

	rows, err := tx.Query(ctx, query, key.Network, key.Station, key.Location, key.Channel, reachEnd, reachStart)
	if err != nil {
		return fmt.Errorf("select overlapping spans: %w", err)
	}

	neighbors, err := scanSpans(rows)
	if err != nil {
		return err
	}

	merged := domain.InsertSpan(neighbors, span, tolerance)
	if len(neighbors) == 1 && len(merged) == 1 && neighbors[0].Equal(merged[0]) {
		// Span already fully covered, nothing to rewrite.
		return tx.Commit(ctx)
	}

	deleteQuery := `
		DELETE FROM archive_span
		WHERE network = $1 AND station = $2 AND location = $3 AND channel = $4
		  AND span_start <= $5 AND span_end >= $6
	`
	if _, err := tx.Exec(ctx, deleteQuery, key.Network, key.Station, key.Location, key.Channel, reachEnd, reachStart); err != nil {
		return fmt.Errorf("delete coalesced spans: %w", err)
	}

	insertQuery := `
		INSERT INTO archive_span (network, station, location, channel, span_start, span_end)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, m := range merged {
		if _, err := tx.Exec(ctx, insertQuery, key.Network, key.Station, key.Location, key.Channel, m.Start, m.End); err != nil {
			return fmt.Errorf("insert merged span: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SpansInWindow returns coverage spans overlapping window, ordered by start ASC.
func (s *CoverageStore) SpansInWindow(ctx context.Context, key domain.StreamKey, window domain.TimeSpan) ([]domain.TimeSpan, error) {
	query := `
		SELECT span_start, span_end
		FROM archive_span
		WHERE network = $1 AND station = $2 AND location = $3 AND channel = $4
		  AND span_start < $5 AND span_end > $6
		ORDER BY span_start ASC
	`

	rows, err := s.pool.Query(ctx, query, key.Network, key.Station, key.Location, key.Channel, window.End, window.Start)
	if err != nil {
		return nil, fmt.Errorf("get spans in window: %w", err)
	}

	return scanSpans(rows)
}

// AllSpans returns every coverage span for key, ordered by start ASC.
func (s *CoverageStore) AllSpans(ctx context.Context, key domain.StreamKey) ([]domain.TimeSpan, error) {
	query := `
		SELECT span_start, span_end
		FROM archive_span
		WHERE network = $1 AND station = $2 AND location = $3 AND channel = $4
		ORDER BY span_start ASC
	`

	rows, err := s.pool.Query(ctx, query, key.Network, key.Station, key.Location, key.Channel)
	if err != nil {
		return nil, fmt.Errorf("get all spans: %w", err)
	}

	return scanSpans(rows)
}

// Keys returns every stream key with at least one coverage span.
func (s *CoverageStore) Keys(ctx context.Context) ([]domain.StreamKey, error) {
	query := `
		SELECT DISTINCT network, station, location, channel
		FROM archive_span
		ORDER BY network ASC, station ASC, location ASC, channel ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get coverage keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.StreamKey
	for rows.Next() {
		var k domain.StreamKey
		if err := rows.Scan(&k.Network, &k.Station, &k.Location, &k.Channel); err != nil {
			return nil, fmt.Errorf("scan coverage key: %w", err)
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage key rows: %w", err)
	}

	return keys, nil
}

// Coalesce re-joins spans closer than tolerance, one key at a time.
func (s *CoverageStore) Coalesce(ctx context.Context, tolerance time.Duration) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.coalesceKey(ctx, key, tolerance); err != nil {
			return fmt.Errorf("coalesce %s: %w", key, err)
		}
	}
	return nil
}

// coalesceKey rewrites one key's spans inside a transaction.
func (s *CoverageStore) coalesceKey(ctx context.Context, key domain.StreamKey, tolerance time.Duration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT span_start, span_end
		FROM archive_span
		WHERE network = $1 AND station = $2 AND location = $3 AND channel = $4
		ORDER BY span_start ASC
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, query, key.Network, key.Station, key.Location, key.Channel)
	if err != nil {
		return fmt.Errorf("select spans: %w", err)
	}

	spans, err := scanSpans(rows)
	if err != nil {
		return err
	}

	merged := domain.CoalesceSpans(spans, tolerance)
	if len(merged) == len(spans) {
		return tx.Commit(ctx)
	}

	deleteQuery := `
		DELETE FROM archive_span
		WHERE network = $1 AND station = $2 AND location = $3 AND channel = $4
	`
	if _, err := tx.Exec(ctx, deleteQuery, key.Network, key.Station, key.Location, key.Channel); err != nil {
		return fmt.Errorf("delete spans: %w", err)
	}

	insertQuery := `
		INSERT INTO archive_span (network, station, location, channel, span_start, span_end)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, m := range merged {
		if _, err := tx.Exec(ctx, insertQuery, key.Network, key.Station, key.Location, key.Channel, m.Start, m.End); err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// scanSpans scans (span_start, span_end) rows into TimeSpans.
func scanSpans(rows pgx.Rows) ([]domain.TimeSpan, error) {
	defer rows.Close()

	var spans []domain.TimeSpan
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("scan span row: %w", err)
		}
		spans = append(spans, domain.Span(start.UTC(), end.UTC()))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate span rows: %w", err)
	}

	return spans, nil
}
