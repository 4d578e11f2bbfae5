package domain

import (
	"fmt"
	"sort"
	"time"
)

// TimeSpan is a half-open interval [Start, End). Zero-length spans are
// invalid.
type TimeSpan struct {
	Start time.Time
	End   time.Time
}

// Span constructs a TimeSpan.
func Span(start, end time.Time) TimeSpan {
	return TimeSpan{Start: start, End: end}
}

// Duration returns End - Start.
func (s TimeSpan) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Valid reports whether Start is strictly before End.
func (s TimeSpan) Valid() bool {
	return s.Start.Before(s.End)
}

// Overlaps reports whether the two half-open spans share any instant.
func (s TimeSpan) Overlaps(o TimeSpan) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Intersect returns the overlap of two spans. ok is false when they are
// disjoint.
func (s TimeSpan) Intersect(o TimeSpan) (TimeSpan, bool) {
	start := s.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := s.End
	if o.End.Before(end) {
		end = o.End
	}
	if !start.Before(end) {
		return TimeSpan{}, false
	}
	return TimeSpan{Start: start, End: end}, true
}

// Union returns the smallest span containing both inputs.
func (s TimeSpan) Union(o TimeSpan) TimeSpan {
	start := s.Start
	if o.Start.Before(start) {
		start = o.Start
	}
	end := s.End
	if o.End.After(end) {
		end = o.End
	}
	return TimeSpan{Start: start, End: end}
}

// Equal reports exact equality of both bounds.
func (s TimeSpan) Equal(o TimeSpan) bool {
	return s.Start.Equal(o.Start) && s.End.Equal(o.End)
}

func (s TimeSpan) String() string {
	return fmt.Sprintf("[%s, %s)", s.Start.UTC().Format(time.RFC3339), s.End.UTC().Format(time.RFC3339))
}

// SortSpans orders spans by start time, then end time.
func SortSpans(spans []TimeSpan) {
	sort.Slice(spans, func(i, j int) bool {
		if !spans[i].Start.Equal(spans[j].Start) {
			return spans[i].Start.Before(spans[j].Start)
		}
		return spans[i].End.Before(spans[j].End)
	})
}

// CoalesceSpans returns a sorted copy of spans with any two spans that
// overlap, touch, or sit closer together than tolerance merged into one.
// Invalid (zero or negative length) spans are dropped.
func CoalesceSpans(spans []TimeSpan, tolerance time.Duration) []TimeSpan {
	var in []TimeSpan
	for _, s := range spans {
		if s.Valid() {
			in = append(in, s)
		}
	}
	if len(in) == 0 {
		return nil
	}
	SortSpans(in)

	out := []TimeSpan{in[0]}
	for _, s := range in[1:] {
		last := &out[len(out)-1]
		if !s.Start.After(last.End.Add(tolerance)) {
			if s.End.After(last.End) {
				last.End = s.End
			}
		} else {
			out = append(out, s)
		}
	}
	return out
}

// InsertSpan merges one span into an existing coalesced set, returning
// the new coalesced set. Equivalent to CoalesceSpans(append(spans, s)).
func InsertSpan(spans []TimeSpan, s TimeSpan, tolerance time.Duration) []TimeSpan {
	return CoalesceSpans(append(append([]TimeSpan{}, spans...), s), tolerance)
}
