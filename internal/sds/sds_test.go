package sds

import (
	"os"
	"testing"
	"time"

	"seisvault/internal/domain"
)

var testKey = domain.StreamKey{Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ"}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return v.UTC()
}

// chunk builds a test chunk whose sample values encode their index.
func chunk(t *testing.T, start string, rate float64, n int) *domain.SeriesChunk {
	t.Helper()
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i)
	}
	return &domain.SeriesChunk{Key: testKey, Start: ts(t, start), SampleRate: rate, Samples: samples}
}

func TestArchive_WriteAndReadDay(t *testing.T) {
	a := NewArchive(t.TempDir())

	c := chunk(t, "2024-03-01T12:00:00Z", 20, 1200) // one minute
	if err := a.WriteChunk(c); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	segs, err := a.ReadDay(testKey, c.Start)
	if err != nil {
		t.Fatalf("ReadDay failed: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segs))
	}
	if !segs[0].Start.Equal(c.Start) || len(segs[0].Samples) != 1200 {
		t.Errorf("Segment mismatch: start=%v n=%d", segs[0].Start, len(segs[0].Samples))
	}
}

func TestArchive_DayPathLayout(t *testing.T) {
	a := NewArchive("/archive")

	path := a.DayPath(testKey, ts(t, "2024-02-05T10:00:00Z"))
	want := "/archive/2024/IU/ANMO/BHZ.D/IU.ANMO.00.BHZ.D.2024.036"
	if path != want {
		t.Errorf("Expected %s, got %s", want, path)
	}
}

func TestArchive_ChunkSpanningMidnight(t *testing.T) {
	a := NewArchive(t.TempDir())

	// 2 minutes straddling midnight: 1 minute on each day
	c := chunk(t, "2024-03-01T23:59:00Z", 20, 2400)
	if err := a.WriteChunk(c); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	day1, err := a.ReadDay(testKey, ts(t, "2024-03-01T00:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	day2, err := a.ReadDay(testKey, ts(t, "2024-03-02T00:00:00Z"))
	if err != nil {
		t.Fatal(err)
	}

	if len(day1) != 1 || len(day2) != 1 {
		t.Fatalf("Expected one segment per day, got %d and %d", len(day1), len(day2))
	}
	if len(day1[0].Samples) != 1200 || len(day2[0].Samples) != 1200 {
		t.Errorf("Expected 1200 samples per day, got %d and %d", len(day1[0].Samples), len(day2[0].Samples))
	}
	if !day2[0].Start.Equal(ts(t, "2024-03-02T00:00:00Z")) {
		t.Errorf("Second day segment starts at %v", day2[0].Start)
	}
}

func TestArchive_RewriteIdempotent(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)

	c := chunk(t, "2024-03-01T12:00:00Z", 20, 1200)
	if err := a.WriteChunk(c); err != nil {
		t.Fatal(err)
	}

	first, err := os.ReadFile(a.DayPath(testKey, c.Start))
	if err != nil {
		t.Fatal(err)
	}

	if err := a.WriteChunk(c); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(a.DayPath(testKey, c.Start))
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Error("Rewriting the same chunk changed the day file")
	}
}

func TestArchive_OverlapNewDataWins(t *testing.T) {
	a := NewArchive(t.TempDir())

	base := chunk(t, "2024-03-01T12:00:00Z", 1, 60)
	if err := a.WriteChunk(base); err != nil {
		t.Fatal(err)
	}

	// Overwrite the middle 20 seconds with a marker value
	over := &domain.SeriesChunk{
		Key:        testKey,
		Start:      ts(t, "2024-03-01T12:00:20Z"),
		SampleRate: 1,
		Samples:    make([]float64, 20),
	}
	for i := range over.Samples {
		over.Samples[i] = 999
	}
	if err := a.WriteChunk(over); err != nil {
		t.Fatal(err)
	}

	segs, err := a.ReadDay(testKey, base.Start)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 1 {
		t.Fatalf("Expected contiguous data to stay one segment, got %d", len(segs))
	}
	if segs[0].Samples[20] != 999 || segs[0].Samples[39] != 999 {
		t.Errorf("Overlap not overwritten: got %v, %v", segs[0].Samples[20], segs[0].Samples[39])
	}
	if segs[0].Samples[19] != 19 || segs[0].Samples[40] != 40 {
		t.Errorf("Neighboring samples clobbered: got %v, %v", segs[0].Samples[19], segs[0].Samples[40])
	}
}

func TestArchive_DisjointSegmentsStaySeparate(t *testing.T) {
	a := NewArchive(t.TempDir())

	first := chunk(t, "2024-03-01T00:00:00Z", 1, 60)
	second := chunk(t, "2024-03-01T12:00:00Z", 1, 60)
	if err := a.WriteChunk(first); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteChunk(second); err != nil {
		t.Fatal(err)
	}

	segs, err := a.ReadDay(testKey, first.Start)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segs))
	}
	if !segs[0].Start.Before(segs[1].Start) {
		t.Error("Segments not ordered by start time")
	}
}

func TestArchive_Scan(t *testing.T) {
	a := NewArchive(t.TempDir())

	c1 := chunk(t, "2024-03-01T23:59:00Z", 20, 2400) // straddles midnight
	other := &domain.SeriesChunk{
		Key:        domain.StreamKey{Network: "XX", Station: "STA01", Location: "", Channel: "HHZ"},
		Start:      ts(t, "2024-03-05T00:00:00Z"),
		SampleRate: 100,
		Samples:    make([]float64, 6000),
	}
	if err := a.WriteChunk(c1); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteChunk(other); err != nil {
		t.Fatal(err)
	}

	found := make(map[domain.StreamKey][]domain.TimeSpan)
	err := a.Scan(func(key domain.StreamKey, span domain.TimeSpan) error {
		found[key] = append(found[key], span)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(found[testKey]) != 2 {
		t.Errorf("Expected 2 spans for %v (one per day), got %d", testKey, len(found[testKey]))
	}
	if len(found[other.Key]) != 1 {
		t.Errorf("Expected 1 span for %v, got %d", other.Key, len(found[other.Key]))
	}

	total := time.Duration(0)
	for _, span := range found[testKey] {
		total += span.Duration()
	}
	if total != 2*time.Minute {
		t.Errorf("Expected 2 minutes of scanned coverage, got %v", total)
	}
}

func TestParseDayFileName(t *testing.T) {
	key, ok := parseDayFileName("IU.ANMO..BHZ.D.2024.036")
	if !ok {
		t.Fatal("Expected valid day file name")
	}
	if key.Location != "" || key.Channel != "BHZ" {
		t.Errorf("Parsed key wrong: %v", key)
	}

	if _, ok := parseDayFileName("random.txt"); ok {
		t.Error("Expected rejection of non-SDS name")
	}
}
