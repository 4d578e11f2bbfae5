// Package sds stores waveform samples on disk in the SDS directory
// convention: one file per stream per UTC day, laid out as
//
//	<root>/<year>/<NET>/<STA>/<CHA>.D/NET.STA.LOC.CHA.D.YEAR.DOY
//
// Day files are rewritten whole through a temp-file rename, so a merge
// either lands completely or not at all.
package sds

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"seisvault/internal/domain"
)

// Archive is an SDS directory tree rooted at a single path.
type Archive struct {
	root string
}

// NewArchive creates an Archive rooted at root. The directory is created
// lazily on first write.
func NewArchive(root string) *Archive {
	return &Archive{root: root}
}

// Root returns the archive root path.
func (a *Archive) Root() string {
	return a.root
}

// DayPath returns the day file path for key on the UTC day containing t.
func (a *Archive) DayPath(key domain.StreamKey, t time.Time) string {
	t = t.UTC()
	year := t.Year()
	doy := t.YearDay()
	name := fmt.Sprintf("%s.%s.%s.%s.D.%d.%03d", key.Network, key.Station, key.Location, key.Channel, year, doy)
	return filepath.Join(a.root,
		fmt.Sprintf("%d", year),
		key.Network,
		key.Station,
		key.Channel+".D",
		name,
	)
}

// WriteChunk merges the chunk's samples into the archive, splitting at
// UTC day boundaries. Where the chunk overlaps existing data the new
// samples win; writing the same chunk twice leaves the files unchanged.
func (a *Archive) WriteChunk(chunk *domain.SeriesChunk) error {
	if chunk.Empty() {
		return nil
	}
	if err := chunk.Key.Validate(); err != nil {
		return err
	}

	for _, piece := range splitAtDayBoundaries(chunk) {
		if err := a.writeDayPiece(chunk.Key, piece); err != nil {
			return err
		}
	}
	return nil
}

// writeDayPiece merges one within-a-day segment into its day file.
func (a *Archive) writeDayPiece(key domain.StreamKey, piece Segment) error {
	path := a.DayPath(key, piece.Start)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create day directory: %w", err)
	}

	existing, err := readDayFile(path)
	if err != nil {
		return err
	}

	merged := mergeSegments(existing, piece)
	return writeDayFile(path, merged)
}

// ReadDay returns the segments stored for key on the UTC day containing t.
func (a *Archive) ReadDay(key domain.StreamKey, t time.Time) ([]Segment, error) {
	return readDayFile(a.DayPath(key, t))
}

// splitAtDayBoundaries cuts a chunk into per-UTC-day segments.
func splitAtDayBoundaries(chunk *domain.SeriesChunk) []Segment {
	var pieces []Segment

	period := float64(time.Second) / chunk.SampleRate
	cur := Segment{Start: chunk.Start.UTC(), SampleRate: chunk.SampleRate, Samples: chunk.Samples}

	for len(cur.Samples) > 0 {
		dayEnd := nextUTCMidnight(cur.Start)
		if !cur.End().After(dayEnd) {
			pieces = append(pieces, cur)
			break
		}

		n := sampleIndexAt(cur, dayEnd)
		if n == 0 {
			// Guard against a start exactly on midnight rounding to zero
			n = 1
		}
		pieces = append(pieces, Segment{
			Start:      cur.Start,
			SampleRate: cur.SampleRate,
			Samples:    cur.Samples[:n],
		})
		cur = Segment{
			Start:      cur.Start.Add(time.Duration(float64(n) * period)),
			SampleRate: cur.SampleRate,
			Samples:    cur.Samples[n:],
		}
	}

	return pieces
}

// nextUTCMidnight returns the first midnight strictly after t.
func nextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(24 * time.Hour)
}
