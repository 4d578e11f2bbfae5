package planner

import (
	"errors"
	"testing"
	"time"

	"seisvault/internal/domain"
)

var planKey = domain.StreamKey{Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ"}

func utc(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return v.UTC()
}

func TestPlan_SplitsAtDayBoundaries(t *testing.T) {
	gaps := map[domain.StreamKey][]domain.TimeSpan{
		planKey: {domain.Span(utc(t, "2024-01-01T18:00:00Z"), utc(t, "2024-01-03T06:00:00Z"))},
	}

	jobs, err := Plan(gaps, 24*time.Hour)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	wantEnds := []string{"2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z", "2024-01-03T06:00:00Z"}
	for i, job := range jobs {
		if !job.Span.End.Equal(utc(t, wantEnds[i])) {
			t.Errorf("Job %d ends at %v, want %s", i, job.Span.End, wantEnds[i])
		}
		if job.Seq != i {
			t.Errorf("Job %d has seq %d", i, job.Seq)
		}
	}
}

func TestPlan_RespectsMaxSpan(t *testing.T) {
	gaps := map[domain.StreamKey][]domain.TimeSpan{
		planKey: {domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T10:00:00Z"))},
	}

	jobs, err := Plan(gaps, 4*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	for i, job := range jobs[:2] {
		if job.Span.Duration() != 4*time.Hour {
			t.Errorf("Job %d span %v, want 4h", i, job.Span.Duration())
		}
	}
	if jobs[2].Span.Duration() != 2*time.Hour {
		t.Errorf("Last job span %v, want 2h", jobs[2].Span.Duration())
	}
}

func TestPlan_OrdersKeysAndTime(t *testing.T) {
	other := domain.StreamKey{Network: "GE", Station: "WLF", Location: "", Channel: "HHZ"}
	gaps := map[domain.StreamKey][]domain.TimeSpan{
		planKey: {domain.Span(utc(t, "2024-01-02T00:00:00Z"), utc(t, "2024-01-02T01:00:00Z"))},
		other: {
			domain.Span(utc(t, "2024-01-05T00:00:00Z"), utc(t, "2024-01-05T01:00:00Z")),
			domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T01:00:00Z")),
		},
	}

	jobs, err := Plan(gaps, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	// GE.WLF sorts before IU.ANMO; its two gaps come back ascending
	if jobs[0].Key != other || jobs[1].Key != other || jobs[2].Key != planKey {
		t.Errorf("Keys out of order: %v %v %v", jobs[0].Key, jobs[1].Key, jobs[2].Key)
	}
	if !jobs[0].Span.Start.Before(jobs[1].Span.Start) {
		t.Error("Same-key jobs not in ascending time order")
	}
	if jobs[0].Seq != 0 || jobs[1].Seq != 1 || jobs[2].Seq != 0 {
		t.Errorf("Seq numbering wrong: %d %d %d", jobs[0].Seq, jobs[1].Seq, jobs[2].Seq)
	}
}

func TestPlan_OverlappingGapsRejected(t *testing.T) {
	gaps := map[domain.StreamKey][]domain.TimeSpan{
		planKey: {
			domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-01T12:00:00Z")),
			domain.Span(utc(t, "2024-01-01T06:00:00Z"), utc(t, "2024-01-02T00:00:00Z")),
		},
	}

	_, err := Plan(gaps, 24*time.Hour)
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("Expected ErrInvariant, got %v", err)
	}
}

func TestPlan_SkipsInvalidGaps(t *testing.T) {
	gaps := map[domain.StreamKey][]domain.TimeSpan{
		planKey: {
			domain.Span(utc(t, "2024-01-02T00:00:00Z"), utc(t, "2024-01-01T00:00:00Z")),
			domain.Span(utc(t, "2024-01-03T00:00:00Z"), utc(t, "2024-01-03T01:00:00Z")),
		},
	}

	jobs, err := Plan(gaps, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}
}

func TestPlan_ZeroMaxSpanUsesDefault(t *testing.T) {
	gaps := map[domain.StreamKey][]domain.TimeSpan{
		planKey: {domain.Span(utc(t, "2024-01-01T00:00:00Z"), utc(t, "2024-01-02T00:00:00Z"))},
	}

	jobs, err := Plan(gaps, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected a single day-long job, got %d", len(jobs))
	}
}
