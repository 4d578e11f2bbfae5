package domain

import "time"

// SeriesChunk is one contiguous run of waveform samples fetched from a
// remote service or a live feed. The span it covers is derived from the
// start time, the sample rate and the sample count: the true data span,
// which may be shorter than what was requested.
type SeriesChunk struct {
	Key        StreamKey
	Start      time.Time
	SampleRate float64 // samples per second
	Samples    []float64
}

// End returns the instant just past the last sample.
func (c *SeriesChunk) End() time.Time {
	if c.SampleRate <= 0 || len(c.Samples) == 0 {
		return c.Start
	}
	d := time.Duration(float64(len(c.Samples)) / c.SampleRate * float64(time.Second))
	return c.Start.Add(d)
}

// Span returns the half-open span covered by the chunk's samples.
func (c *SeriesChunk) Span() TimeSpan {
	return TimeSpan{Start: c.Start, End: c.End()}
}

// Empty reports whether the chunk carries no usable samples.
func (c *SeriesChunk) Empty() bool {
	return c == nil || len(c.Samples) == 0 || c.SampleRate <= 0
}
