package sds

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"seisvault/internal/domain"
)

// Day file framing: magic, version, segment count, then per segment a
// fixed header (start nanoseconds, sample rate, sample count) followed by
// the raw float64 samples, all little-endian.
const (
	dayFileMagic   = "SVD1"
	dayFileVersion = uint16(1)
)

// Segment is one contiguous run of samples inside a day file.
type Segment struct {
	Start      time.Time
	SampleRate float64
	Samples    []float64
}

// End returns the instant just past the last sample.
func (s Segment) End() time.Time {
	if s.SampleRate <= 0 || len(s.Samples) == 0 {
		return s.Start
	}
	d := time.Duration(float64(len(s.Samples)) / s.SampleRate * float64(time.Second))
	return s.Start.Add(d)
}

// Span returns the half-open span covered by the segment.
func (s Segment) Span() domain.TimeSpan {
	return domain.TimeSpan{Start: s.Start, End: s.End()}
}

// readDayFile decodes every segment of a day file. A missing file yields
// an empty slice.
func readDayFile(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open day file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read day file magic: %w", err)
	}
	if string(magic) != dayFileMagic {
		return nil, fmt.Errorf("day file %s: bad magic %q", path, magic)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read day file version: %w", err)
	}
	if version != dayFileVersion {
		return nil, fmt.Errorf("day file %s: unsupported version %d", path, version)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read segment count: %w", err)
	}

	segments := make([]Segment, 0, count)
	for i := uint32(0); i < count; i++ {
		var startNano int64
		var rate float64
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &startNano); err != nil {
			return nil, fmt.Errorf("read segment %d start: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &rate); err != nil {
			return nil, fmt.Errorf("read segment %d rate: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("read segment %d count: %w", i, err)
		}

		samples := make([]float64, n)
		if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
			return nil, fmt.Errorf("read segment %d samples: %w", i, err)
		}

		segments = append(segments, Segment{
			Start:      time.Unix(0, startNano).UTC(),
			SampleRate: rate,
			Samples:    samples,
		})
	}

	return segments, nil
}

// writeDayFile replaces the day file atomically: encode to a temp file in
// the same directory, then rename over the target.
func writeDayFile(path string, segments []Segment) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp day file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	if err := encodeDayFile(w, segments); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush day file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp day file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename day file: %w", err)
	}
	return nil
}

func encodeDayFile(w io.Writer, segments []Segment) error {
	if _, err := w.Write([]byte(dayFileMagic)); err != nil {
		return fmt.Errorf("write day file magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, dayFileVersion); err != nil {
		return fmt.Errorf("write day file version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(segments))); err != nil {
		return fmt.Errorf("write segment count: %w", err)
	}

	for i, seg := range segments {
		if err := binary.Write(w, binary.LittleEndian, seg.Start.UnixNano()); err != nil {
			return fmt.Errorf("write segment %d start: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, seg.SampleRate); err != nil {
			return fmt.Errorf("write segment %d rate: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(seg.Samples))); err != nil {
			return fmt.Errorf("write segment %d count: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, seg.Samples); err != nil {
			return fmt.Errorf("write segment %d samples: %w", i, err)
		}
	}

	return nil
}

// mergeSegments inserts a new segment into an existing set, with the new
// data winning wherever spans overlap. Existing segments are trimmed (or
// split) around the new span; exactly contiguous segments at the same
// rate are rejoined afterwards. Deterministic: the result depends only on
// the final set of samples, which makes whole-file rewrites idempotent.
func mergeSegments(existing []Segment, incoming Segment) []Segment {
	if len(incoming.Samples) == 0 || incoming.SampleRate <= 0 {
		return existing
	}

	span := incoming.Span()
	var out []Segment
	for _, seg := range existing {
		out = append(out, trimSegment(seg, span)...)
	}
	out = append(out, incoming)

	sortSegments(out)
	return joinContiguous(out)
}

// trimSegment cuts the part of seg that falls inside cut, returning up to
// two remainder segments.
func trimSegment(seg Segment, cut domain.TimeSpan) []Segment {
	if !seg.Span().Overlaps(cut) {
		return []Segment{seg}
	}

	var out []Segment
	period := float64(time.Second) / seg.SampleRate

	// Samples strictly before the cut
	if seg.Start.Before(cut.Start) {
		n := sampleIndexAt(seg, cut.Start)
		if n > 0 {
			out = append(out, Segment{
				Start:      seg.Start,
				SampleRate: seg.SampleRate,
				Samples:    append([]float64(nil), seg.Samples[:n]...),
			})
		}
	}

	// Samples at or after the cut end
	if seg.End().After(cut.End) {
		n := sampleIndexAt(seg, cut.End)
		if n < len(seg.Samples) {
			out = append(out, Segment{
				Start:      seg.Start.Add(time.Duration(float64(n) * period)),
				SampleRate: seg.SampleRate,
				Samples:    append([]float64(nil), seg.Samples[n:]...),
			})
		}
	}

	return out
}

// sampleIndexAt returns the index of the first sample at or after t.
func sampleIndexAt(seg Segment, t time.Time) int {
	offset := t.Sub(seg.Start).Seconds()
	idx := int(math.Ceil(offset * seg.SampleRate))
	if idx < 0 {
		idx = 0
	}
	if idx > len(seg.Samples) {
		idx = len(seg.Samples)
	}
	return idx
}

func sortSegments(segs []Segment) {
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && segs[j].Start.Before(segs[j-1].Start); j-- {
			segs[j], segs[j-1] = segs[j-1], segs[j]
		}
	}
}

// joinContiguous merges neighboring segments whose samples line up
// exactly (same rate, next start within half a sample period of the
// previous end).
func joinContiguous(segs []Segment) []Segment {
	if len(segs) == 0 {
		return nil
	}

	out := []Segment{segs[0]}
	for _, seg := range segs[1:] {
		last := &out[len(out)-1]
		halfPeriod := time.Duration(float64(time.Second) / last.SampleRate / 2)
		gap := seg.Start.Sub(last.End())
		if last.SampleRate == seg.SampleRate && gap > -halfPeriod && gap < halfPeriod {
			last.Samples = append(last.Samples, seg.Samples...)
		} else {
			out = append(out, seg)
		}
	}
	return out
}
