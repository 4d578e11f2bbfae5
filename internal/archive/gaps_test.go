package archive

import (
	"testing"
	"time"

	"seisvault/internal/domain"
)

func utc(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return v.UTC()
}

func TestComputeGaps_TrailingGap(t *testing.T) {
	covered := []domain.TimeSpan{
		domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-05T00:00:00Z")),
	}
	requested := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-10T00:00:00Z"))

	gaps := ComputeGaps(covered, requested, 60*time.Second)

	if len(gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(gaps))
	}
	want := domain.Span(utc(t, "2024-01-05T00:00:00Z"), utc(t, "2024-01-10T00:00:00Z"))
	if !gaps[0].Equal(want) {
		t.Errorf("Expected gap %v, got %v", want, gaps[0])
	}
}

func TestComputeGaps_EmptyCoverage(t *testing.T) {
	requested := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-02T00:00:00Z"))

	gaps := ComputeGaps(nil, requested, time.Minute)

	if len(gaps) != 1 || !gaps[0].Equal(requested) {
		t.Errorf("Expected the whole window back, got %v", gaps)
	}
}

func TestComputeGaps_FullCoverage(t *testing.T) {
	requested := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-02T00:00:00Z"))
	covered := []domain.TimeSpan{
		domain.Span(utc(t, "2023-12-31T00:00:00Z"), utc(t, "2024-01-03T00:00:00Z")),
	}

	gaps := ComputeGaps(covered, requested, time.Minute)

	if len(gaps) != 0 {
		t.Errorf("Expected no gaps, got %v", gaps)
	}
}

func TestComputeGaps_InteriorHole(t *testing.T) {
	requested := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T12:00:00Z"))
	covered := []domain.TimeSpan{
		domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T03:00:00Z")),
		domain.Span(utc(t, "2024-01-01T09:00:00Z"), utc(t, "2024-01-01T12:00:00Z")),
	}

	gaps := ComputeGaps(covered, requested, time.Minute)

	if len(gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(gaps))
	}
	want := domain.Span(utc(t, "2024-01-01T03:00:00Z"), utc(t, "2024-01-01T09:00:00Z"))
	if !gaps[0].Equal(want) {
		t.Errorf("Expected gap %v, got %v", want, gaps[0])
	}
}

func TestComputeGaps_SubToleranceHoleIgnored(t *testing.T) {
	requested := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T12:00:00Z"))
	covered := []domain.TimeSpan{
		domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T06:00:00Z")),
		// 30 second hole, under the 60 second tolerance
		domain.Span(utc(t, "2024-01-01T06:00:30Z"), utc(t, "2024-01-01T12:00:00Z")),
	}

	gaps := ComputeGaps(covered, requested, 60*time.Second)

	if len(gaps) != 0 {
		t.Errorf("Expected hole under tolerance to be ignored, got %v", gaps)
	}
}

func TestComputeGaps_LeadingGap(t *testing.T) {
	requested := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T12:00:00Z"))
	covered := []domain.TimeSpan{
		domain.Span(utc(t, "2024-01-01T06:00:00Z"), utc(t, "2024-01-02T00:00:00Z")),
	}

	gaps := ComputeGaps(covered, requested, time.Minute)

	if len(gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(gaps))
	}
	want := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T06:00:00Z"))
	if !gaps[0].Equal(want) {
		t.Errorf("Expected gap %v, got %v", want, gaps[0])
	}
}

func TestComputeGaps_UnsortedOverlappingCoverage(t *testing.T) {
	requested := domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T12:00:00Z"))
	covered := []domain.TimeSpan{
		domain.Span(utc(t, "2024-01-01T08:00:00Z"), utc(t, "2024-01-01T12:00:00Z")),
		domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T05:00:00Z")),
		domain.Span(utc(t, "2024-01-01T04:00:00Z"), utc(t, "2024-01-01T06:00:00Z")),
	}

	gaps := ComputeGaps(covered, requested, time.Minute)

	if len(gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(gaps))
	}
	want := domain.Span(utc(t, "2024-01-01T06:00:00Z"), utc(t, "2024-01-01T08:00:00Z"))
	if !gaps[0].Equal(want) {
		t.Errorf("Expected gap %v, got %v", want, gaps[0])
	}
}

func TestComputeGaps_InvalidRequest(t *testing.T) {
	requested := domain.Span(utc(t, "2024-01-02T00:00:00Z"), utc(t, "2024-01-01T00:00:00Z"))

	if gaps := ComputeGaps(nil, requested, 0); gaps != nil {
		t.Errorf("Expected nil for an inverted window, got %v", gaps)
	}
}
