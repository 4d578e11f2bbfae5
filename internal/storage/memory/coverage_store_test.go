package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

var testKey = domain.StreamKey{Network: "IU", Station: "ANMO", Location: "00", Channel: "BHZ"}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func TestCoverageStore_MergeAndGet(t *testing.T) {
	store := NewCoverageStore()
	ctx := context.Background()

	span := domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-02T00:00:00Z"))
	if err := store.MergeSpan(ctx, testKey, span, 60*time.Second); err != nil {
		t.Fatalf("MergeSpan failed: %v", err)
	}

	spans, err := store.AllSpans(ctx, testKey)
	if err != nil {
		t.Fatalf("AllSpans failed: %v", err)
	}
	if len(spans) != 1 || !spans[0].Equal(span) {
		t.Errorf("Expected [%v], got %v", span, spans)
	}
}

func TestCoverageStore_MergeCoalesces(t *testing.T) {
	store := NewCoverageStore()
	ctx := context.Background()
	tol := 60 * time.Second

	a := domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-01T06:00:00Z"))
	// 30s gap, inside tolerance
	b := domain.Span(mustTime(t, "2024-01-01T06:00:30Z"), mustTime(t, "2024-01-01T12:00:00Z"))

	if err := store.MergeSpan(ctx, testKey, a, tol); err != nil {
		t.Fatalf("MergeSpan a failed: %v", err)
	}
	if err := store.MergeSpan(ctx, testKey, b, tol); err != nil {
		t.Fatalf("MergeSpan b failed: %v", err)
	}

	spans, _ := store.AllSpans(ctx, testKey)
	if len(spans) != 1 {
		t.Fatalf("Expected 1 coalesced span, got %d", len(spans))
	}
	if !spans[0].Start.Equal(a.Start) || !spans[0].End.Equal(b.End) {
		t.Errorf("Coalesced span has wrong bounds: %v", spans[0])
	}
}

func TestCoverageStore_MergeIdempotent(t *testing.T) {
	store := NewCoverageStore()
	ctx := context.Background()

	span := domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-02T00:00:00Z"))
	for i := 0; i < 3; i++ {
		if err := store.MergeSpan(ctx, testKey, span, 0); err != nil {
			t.Fatalf("MergeSpan %d failed: %v", i, err)
		}
	}

	spans, _ := store.AllSpans(ctx, testKey)
	if len(spans) != 1 {
		t.Errorf("Expected 1 span after repeated merges, got %d", len(spans))
	}
}

func TestCoverageStore_SpansInWindow(t *testing.T) {
	store := NewCoverageStore()
	ctx := context.Background()

	a := domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-02T00:00:00Z"))
	b := domain.Span(mustTime(t, "2024-01-05T00:00:00Z"), mustTime(t, "2024-01-06T00:00:00Z"))
	if err := store.MergeSpan(ctx, testKey, a, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.MergeSpan(ctx, testKey, b, 0); err != nil {
		t.Fatal(err)
	}

	window := domain.Span(mustTime(t, "2024-01-04T00:00:00Z"), mustTime(t, "2024-01-10T00:00:00Z"))
	spans, err := store.SpansInWindow(ctx, testKey, window)
	if err != nil {
		t.Fatalf("SpansInWindow failed: %v", err)
	}
	if len(spans) != 1 || !spans[0].Equal(b) {
		t.Errorf("Expected only second span in window, got %v", spans)
	}
}

func TestCoverageStore_InvalidInput(t *testing.T) {
	store := NewCoverageStore()
	ctx := context.Background()

	zero := domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-01T00:00:00Z"))
	err := store.MergeSpan(ctx, testKey, zero, 0)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero-length span, got %v", err)
	}

	err = store.MergeSpan(ctx, domain.StreamKey{}, domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-02T00:00:00Z")), 0)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty key, got %v", err)
	}
}

func TestCoverageStore_KeysSorted(t *testing.T) {
	store := NewCoverageStore()
	ctx := context.Background()

	k1 := domain.StreamKey{Network: "XX", Station: "STA2", Channel: "BHZ"}
	k2 := domain.StreamKey{Network: "IU", Station: "ANMO", Channel: "BHZ"}
	span := domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-02T00:00:00Z"))

	if err := store.MergeSpan(ctx, k1, span, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.MergeSpan(ctx, k2, span, 0); err != nil {
		t.Fatal(err)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Expected 2 keys, got %d", len(keys))
	}
	if keys[0] != k2 {
		t.Errorf("Keys not sorted: first is %v", keys[0])
	}
}

func TestCoverageStore_Coalesce(t *testing.T) {
	store := NewCoverageStore()
	ctx := context.Background()

	// Merge with zero tolerance so the two spans stay separate
	a := domain.Span(mustTime(t, "2024-01-01T00:00:00Z"), mustTime(t, "2024-01-01T06:00:00Z"))
	b := domain.Span(mustTime(t, "2024-01-01T06:00:30Z"), mustTime(t, "2024-01-01T12:00:00Z"))
	if err := store.MergeSpan(ctx, testKey, a, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.MergeSpan(ctx, testKey, b, 0); err != nil {
		t.Fatal(err)
	}

	spans, _ := store.AllSpans(ctx, testKey)
	if len(spans) != 2 {
		t.Fatalf("Setup expected 2 spans, got %d", len(spans))
	}

	if err := store.Coalesce(ctx, 60*time.Second); err != nil {
		t.Fatalf("Coalesce failed: %v", err)
	}

	spans, _ = store.AllSpans(ctx, testKey)
	if len(spans) != 1 {
		t.Errorf("Expected 1 span after coalesce, got %d", len(spans))
	}
}

func TestArrivalStore_PutGetReplace(t *testing.T) {
	store := NewArrivalStore()
	ctx := context.Background()

	a := &domain.ArrivalPrediction{
		EventID:  "ev1",
		Network:  "IU",
		Station:  "ANMO",
		PArrival: mustTime(t, "2024-01-01T00:05:00Z"),
		Model:    "uniform",
	}

	if err := store.Put(ctx, a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "ev1", "IU", "ANMO")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.PArrival.Equal(a.PArrival) {
		t.Errorf("Expected PArrival %v, got %v", a.PArrival, got.PArrival)
	}

	// Replace
	a.PArrival = mustTime(t, "2024-01-01T00:06:00Z")
	if err := store.Put(ctx, a); err != nil {
		t.Fatalf("Put replace failed: %v", err)
	}
	got, _ = store.Get(ctx, "ev1", "IU", "ANMO")
	if !got.PArrival.Equal(a.PArrival) {
		t.Errorf("Expected replaced PArrival %v, got %v", a.PArrival, got.PArrival)
	}

	// Missing entry
	_, err = store.Get(ctx, "ev2", "IU", "ANMO")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
