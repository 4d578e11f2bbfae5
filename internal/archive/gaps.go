// Package archive ties the on-disk waveform store to the coverage
// index: it computes what is missing from a requested window and
// applies fetched chunks so that disk and index stay consistent.
package archive

import (
	"time"

	"seisvault/internal/domain"
)

// ComputeGaps returns the parts of requested that covered does not
// reach, treating holes no longer than tolerance as covered. Covered
// spans are coalesced first, so overlapping or adjacent input spans are
// handled correctly. The result is sorted and non-overlapping.
func ComputeGaps(covered []domain.TimeSpan, requested domain.TimeSpan, tolerance time.Duration) []domain.TimeSpan {
	if !requested.Valid() {
		return nil
	}

	merged := domain.CoalesceSpans(covered, tolerance)

	var gaps []domain.TimeSpan
	cursor := requested.Start

	for _, span := range merged {
		if !span.End.After(cursor) {
			continue
		}
		if !span.Start.Before(requested.End) {
			break
		}
		if span.Start.After(cursor) {
			gap := domain.Span(cursor, minTime(span.Start, requested.End))
			if gap.Duration() > tolerance {
				gaps = append(gaps, gap)
			}
		}
		if span.End.After(cursor) {
			cursor = span.End
		}
		if !cursor.Before(requested.End) {
			return gaps
		}
	}

	if cursor.Before(requested.End) {
		gap := domain.Span(cursor, requested.End)
		if gap.Duration() > tolerance {
			gaps = append(gaps, gap)
		}
	}

	return gaps
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
