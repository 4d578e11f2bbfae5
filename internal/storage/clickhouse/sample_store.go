package clickhouse

import (
	"context"
	"fmt"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

// SampleTimeseriesStore implements storage.SampleTimeseriesStore using
// ClickHouse. ReplacingMergeTree absorbs the duplicate rows produced by
// re-merged spans, so inserts never need a read-before-write.
type SampleTimeseriesStore struct {
	conn *Conn
}

// NewSampleTimeseriesStore creates a new SampleTimeseriesStore.
func NewSampleTimeseriesStore(conn *Conn) *SampleTimeseriesStore {
	return &SampleTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SampleTimeseriesStore = (*SampleTimeseriesStore)(nil)

// InsertChunk appends every sample of the chunk.
func (s *SampleTimeseriesStore) InsertChunk(ctx context.Context, chunk *domain.SeriesChunk) error {
	if chunk.Empty() {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO waveform_samples (
			network, station, location, channel, sample_time, value
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	period := float64(time.Second) / chunk.SampleRate
	for i, v := range chunk.Samples {
		sampleTime := chunk.Start.Add(time.Duration(float64(i) * period))
		err = batch.Append(
			chunk.Key.Network, chunk.Key.Station, chunk.Key.Location, chunk.Key.Channel,
			sampleTime, v,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// CountByKeyTimeRange returns the number of mirrored samples for a
// stream within [start, end).
func (s *SampleTimeseriesStore) CountByKeyTimeRange(ctx context.Context, key domain.StreamKey, start, end time.Time) (uint64, error) {
	query := `
		SELECT count(*) FROM waveform_samples
		WHERE network = ? AND station = ? AND location = ? AND channel = ?
		  AND sample_time >= ? AND sample_time < ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query,
		key.Network, key.Station, key.Location, key.Channel, start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count samples by time range: %w", err)
	}
	return count, nil
}
