package acquire

import (
	"fmt"
	"time"

	"seisvault/internal/domain"
)

// Failure records one window that could not be acquired.
type Failure struct {
	Key    domain.StreamKey
	Span   domain.TimeSpan
	Reason string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s: %s", f.Key, f.Span, f.Reason)
}

// Report summarizes one acquisition run.
type Report struct {
	// SpansFetched counts windows that came back with samples.
	SpansFetched int
	// SpansFailed holds windows that stay missing after retries.
	SpansFailed []Failure
	// SpansSkipped counts windows already covered by the archive.
	SpansSkipped int
	// SamplesMerged counts individual samples written to the archive.
	SamplesMerged int64
	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Complete reports whether every planned window was either fetched or
// already covered.
func (r *Report) Complete() bool {
	return len(r.SpansFailed) == 0
}
