// Package scheduler runs planned fetch jobs on a bounded worker pool.
// Fetches for different streams run concurrently; results for one
// stream are applied strictly in submission order, so the archive
// always grows forward in time per stream.
package scheduler

import (
	"context"

	"seisvault/internal/domain"
)

// Fetcher retrieves the samples covering one window of one stream.
type Fetcher interface {
	FetchWaveform(ctx context.Context, key domain.StreamKey, span domain.TimeSpan) ([]*domain.SeriesChunk, error)
}

// MultiFetcher tries several datacenters in order and returns the
// first successful answer. When every fetcher fails, the last error is
// returned.
type MultiFetcher []Fetcher

func (m MultiFetcher) FetchWaveform(ctx context.Context, key domain.StreamKey, span domain.TimeSpan) ([]*domain.SeriesChunk, error) {
	var lastErr error
	for _, f := range m {
		chunks, err := f.FetchWaveform(ctx, key, span)
		if err == nil {
			return chunks, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
