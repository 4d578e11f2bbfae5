// Package planner turns per-stream gap lists into a bounded sequence
// of fetch requests. Requests never cross a UTC day boundary and never
// exceed the configured maximum span, so a single bad window cannot
// stall a whole run.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"seisvault/internal/domain"
)

// ErrInvariant reports a plan that would fetch the same instant twice
// for one stream. Gaps passed to Plan must be disjoint per key.
var ErrInvariant = errors.New("plan contains overlapping requests")

// DefaultMaxSpan bounds a single request when the caller passes zero.
const DefaultMaxSpan = 24 * time.Hour

// Job is one fetch request. Seq orders jobs of the same stream by
// submission; results are applied in Seq order per key.
type Job struct {
	Key  domain.StreamKey
	Span domain.TimeSpan
	Seq  int
}

// Plan splits every gap into day-aligned pieces no longer than maxSpan
// and returns the jobs ordered by key, then ascending time. Invalid
// gaps are skipped.
func Plan(gaps map[domain.StreamKey][]domain.TimeSpan, maxSpan time.Duration) ([]Job, error) {
	if maxSpan <= 0 {
		maxSpan = DefaultMaxSpan
	}

	keys := make([]domain.StreamKey, 0, len(gaps))
	for key := range gaps {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	var jobs []Job
	for _, key := range keys {
		spans := append([]domain.TimeSpan(nil), gaps[key]...)
		domain.SortSpans(spans)

		seq := 0
		var prevEnd time.Time
		for _, gap := range spans {
			if !gap.Valid() {
				continue
			}
			if !prevEnd.IsZero() && gap.Start.Before(prevEnd) {
				return nil, fmt.Errorf("%w: %s at %s", ErrInvariant, key, gap)
			}
			prevEnd = gap.End

			for cur := gap.Start; cur.Before(gap.End); {
				end := cur.Add(maxSpan)
				if dayEnd := nextUTCMidnight(cur); dayEnd.Before(end) {
					end = dayEnd
				}
				if gap.End.Before(end) {
					end = gap.End
				}
				jobs = append(jobs, Job{Key: key, Span: domain.Span(cur, end), Seq: seq})
				seq++
				cur = end
			}
		}
	}

	return jobs, nil
}

func nextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(24 * time.Hour)
}
