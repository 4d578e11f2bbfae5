// Package acquire drives archive-aware acquisition: it asks the
// datacenter what stations exist, compares the requested windows with
// what the archive already holds, and fetches only the missing parts.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"seisvault/internal/archive"
	"seisvault/internal/domain"
	"seisvault/internal/fdsn"
	"seisvault/internal/inventory"
	"seisvault/internal/observability"
	"seisvault/internal/planner"
	"seisvault/internal/scheduler"
	"seisvault/internal/sds"
	"seisvault/internal/storage"
)

// Mode selects how acquisition windows are derived.
type Mode string

const (
	// ModeContinuous fetches the full requested window for every
	// selected stream.
	ModeContinuous Mode = "continuous"
	// ModeEvent fetches a window around the predicted P arrival of
	// each catalog event at each station.
	ModeEvent Mode = "event"
)

// endClampAge keeps acquisition away from the datacenter's real-time
// edge, where windows are still filling in.
const endClampAge = 120 * time.Second

// Default event window margins around the predicted P arrival.
const (
	DefaultBeforeP = 1 * time.Minute
	DefaultAfterP  = 10 * time.Minute
)

// InventorySource lists channel epochs for a station selection.
type InventorySource interface {
	FetchStationInventory(ctx context.Context, query fdsn.StationQuery) ([]domain.ChannelEntry, error)
}

// CatalogSource lists events for a catalog selection.
type CatalogSource interface {
	FetchEventCatalog(ctx context.Context, query fdsn.EventQuery) ([]domain.EventAnchor, error)
}

// EngineOptions wires an Engine together. Inventory, Pool, Writer and
// Coverage are required; the rest defaults.
type EngineOptions struct {
	Inventory InventorySource
	Catalog   CatalogSource // required for ModeEvent
	Pool      *scheduler.Pool
	Writer    *archive.Writer
	Coverage  storage.CoverageStore
	Archive   *sds.Archive // required for SyncArchive
	Arrivals  storage.ArrivalStore
	Resolver  *inventory.Resolver
	Predictor ArrivalPredictor

	GapTolerance   time.Duration
	DaysPerRequest int
	Logger         *log.Logger
}

// Engine plans and runs acquisition against one archive.
type Engine struct {
	inventory InventorySource
	catalog   CatalogSource
	pool      *scheduler.Pool
	writer    *archive.Writer
	coverage  storage.CoverageStore
	archive   *sds.Archive
	resolver  *inventory.Resolver
	predictor *cachedPredictor

	tol     time.Duration
	maxSpan time.Duration
	logger  *log.Logger
	now     func() time.Time
}

// NewEngine creates an Engine from opts.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Inventory == nil {
		return nil, errors.New("inventory source is required")
	}
	if opts.Pool == nil {
		return nil, errors.New("scheduler pool is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("archive writer is required")
	}
	if opts.Coverage == nil {
		return nil, errors.New("coverage store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = inventory.NewResolver(nil, nil)
	}
	var predictor ArrivalPredictor = opts.Predictor
	if predictor == nil {
		predictor = UniformVelocityPredictor{}
	}
	maxSpan := 24 * time.Hour
	if opts.DaysPerRequest > 0 {
		maxSpan = time.Duration(opts.DaysPerRequest) * 24 * time.Hour
	}

	return &Engine{
		inventory: opts.Inventory,
		catalog:   opts.Catalog,
		pool:      opts.Pool,
		writer:    opts.Writer,
		coverage:  opts.Coverage,
		archive:   opts.Archive,
		resolver:  resolver,
		predictor: newCachedPredictor(predictor, opts.Arrivals, logger),
		tol:       opts.GapTolerance,
		maxSpan:   maxSpan,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Request describes one acquisition run.
type Request struct {
	Mode   Mode
	Window domain.TimeSpan

	Stations fdsn.StationQuery
	Events   fdsn.EventQuery

	// Event window margins around the predicted P arrival. Zero means
	// the defaults.
	BeforeP time.Duration
	AfterP  time.Duration

	// ForceStations are NET.STA codes included even when the station
	// query does not select them. ExcludeStations are dropped after
	// selection.
	ForceStations   []string
	ExcludeStations []string

	// MarkEmptySpans records windows the service definitively answered
	// empty as covered, so later runs stop asking for them.
	MarkEmptySpans bool
}

// target is one window wanted for one stream.
type target struct {
	key  domain.StreamKey
	span domain.TimeSpan
}

// Acquire runs one acquisition pass and reports what happened. A
// cancelled context stops dispatching new fetches; everything already
// in flight is still merged.
func (e *Engine) Acquire(ctx context.Context, req Request) (*Report, error) {
	started := e.now()
	report := &Report{}
	if req.Mode == "" {
		req.Mode = ModeContinuous
	}

	window, err := e.clampWindow(req.Window)
	if err != nil {
		return nil, err
	}

	entries, err := e.loadInventory(ctx, req, window)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("station selection matched no channels")
	}

	resolution := e.resolver.Resolve(entries)
	for _, code := range resolution.Unresolved {
		e.logger.Printf("WARNING: no usable channel for station %s", code)
	}

	targets, err := e.buildTargets(ctx, req, window, entries, resolution)
	if err != nil {
		return nil, err
	}

	gaps, err := e.findGaps(ctx, targets, report)
	if err != nil {
		return nil, err
	}

	jobs, err := planner.Plan(gaps, e.maxSpan)
	if err != nil {
		return nil, fmt.Errorf("plan requests: %w", err)
	}
	e.logger.Printf("planned %d requests across %d streams", len(jobs), len(gaps))

	e.pool.Run(ctx, jobs, func(res scheduler.Result) {
		e.applyResult(ctx, req, res, report)
	})

	if err := e.coverage.Coalesce(ctx, e.tol); err != nil {
		e.logger.Printf("WARNING: coverage coalesce failed: %v", err)
	}

	report.Duration = e.now().Sub(started)

	status := "ok"
	if !report.Complete() {
		status = "incomplete"
	}
	observability.RecordRun(string(req.Mode), status, report.Duration)
	observability.DefaultMetrics.SpansSkipped.Add(float64(report.SpansSkipped))

	return report, nil
}

// clampWindow keeps the window away from the real-time edge.
func (e *Engine) clampWindow(window domain.TimeSpan) (domain.TimeSpan, error) {
	edge := e.now().Add(-endClampAge)
	if window.End.After(edge) {
		window.End = edge
	}
	if !window.Valid() {
		return domain.TimeSpan{}, fmt.Errorf("empty acquisition window %s", window)
	}
	return window, nil
}

// loadInventory fetches the selected stations plus any forced ones, and
// applies the exclusion list.
func (e *Engine) loadInventory(ctx context.Context, req Request, window domain.TimeSpan) ([]domain.ChannelEntry, error) {
	query := req.Stations
	query.Window = window

	entries, err := e.inventory.FetchStationInventory(ctx, query)
	if err != nil && !fdsn.IsNoData(err) {
		return nil, fmt.Errorf("fetch inventory: %w", err)
	}

	if len(req.ForceStations) > 0 {
		forced, err := e.inventory.FetchStationInventory(ctx, fdsn.StationQuery{
			Stations: stationNames(req.ForceStations),
			Window:   window,
		})
		if err != nil && !fdsn.IsNoData(err) {
			return nil, fmt.Errorf("fetch forced stations: %w", err)
		}
		entries = mergeEntries(entries, forced, req.ForceStations)
	}

	if len(req.ExcludeStations) == 0 {
		return entries, nil
	}
	excluded := make(map[string]bool, len(req.ExcludeStations))
	for _, code := range req.ExcludeStations {
		excluded[code] = true
	}
	kept := entries[:0]
	for _, entry := range entries {
		if excluded[entry.Network+"."+entry.Station] || excluded[entry.Station] {
			continue
		}
		kept = append(kept, entry)
	}
	return kept, nil
}

// buildTargets derives the wanted windows per stream.
func (e *Engine) buildTargets(ctx context.Context, req Request, window domain.TimeSpan, entries []domain.ChannelEntry, resolution inventory.Resolution) (map[domain.StreamKey][]domain.TimeSpan, error) {
	byKey := make(map[domain.StreamKey]domain.ChannelEntry, len(entries))
	for _, entry := range entries {
		byKey[entry.Key()] = entry
	}

	selected := make([]domain.StreamKey, 0)
	for code, cands := range resolution.Selected {
		net, sta, ok := splitStationCode(code)
		if !ok {
			continue
		}
		for _, cand := range cands {
			selected = append(selected, domain.StreamKey{
				Network: net, Station: sta, Location: cand.Location, Channel: cand.Channel,
			})
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].String() < selected[j].String()
	})

	now := e.now()
	targets := make(map[domain.StreamKey][]domain.TimeSpan)

	switch req.Mode {
	case ModeContinuous, "":
		for _, key := range selected {
			entry, ok := byKey[key]
			if !ok {
				continue
			}
			span, ok := window.Intersect(entry.Epoch(now))
			if !ok {
				continue
			}
			targets[key] = append(targets[key], span)
		}

	case ModeEvent:
		if e.catalog == nil {
			return nil, errors.New("event mode requires a catalog source")
		}
		events, err := e.catalog.FetchEventCatalog(ctx, withWindow(req.Events, window))
		if err != nil {
			if fdsn.IsNoData(err) {
				return targets, nil
			}
			return nil, fmt.Errorf("fetch event catalog: %w", err)
		}
		e.logger.Printf("catalog returned %d events", len(events))

		beforeP, afterP := req.BeforeP, req.AfterP
		if beforeP <= 0 {
			beforeP = DefaultBeforeP
		}
		if afterP <= 0 {
			afterP = DefaultAfterP
		}

		for _, event := range events {
			for _, key := range selected {
				entry, ok := byKey[key]
				if !ok {
					continue
				}
				pred, err := e.predictor.predict(ctx, event, key.Network, key.Station, entry.Latitude, entry.Longitude)
				if err != nil {
					return nil, err
				}
				want := domain.Span(pred.PArrival.Add(-beforeP), pred.PArrival.Add(afterP))
				span, ok := want.Intersect(entry.Epoch(now))
				if !ok {
					continue
				}
				if span.End.After(window.End) {
					span.End = window.End
				}
				if !span.Valid() {
					continue
				}
				targets[key] = append(targets[key], span)
			}
		}

	default:
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}

	// Event windows for nearby events overlap; merge them so the plan
	// never asks for the same instant twice.
	for key, spans := range targets {
		targets[key] = domain.CoalesceSpans(spans, 0)
	}
	return targets, nil
}

// findGaps subtracts existing coverage from every target window.
func (e *Engine) findGaps(ctx context.Context, targets map[domain.StreamKey][]domain.TimeSpan, report *Report) (map[domain.StreamKey][]domain.TimeSpan, error) {
	gaps := make(map[domain.StreamKey][]domain.TimeSpan)

	for key, spans := range targets {
		var keyGaps []domain.TimeSpan
		for _, span := range spans {
			covered, err := e.coverage.SpansInWindow(ctx, key, span)
			if err != nil {
				return nil, fmt.Errorf("read coverage for %s: %w", key, err)
			}
			missing := archive.ComputeGaps(covered, span, e.tol)
			if len(missing) == 0 {
				report.SpansSkipped++
				continue
			}
			keyGaps = append(keyGaps, missing...)
		}
		if len(keyGaps) > 0 {
			gaps[key] = domain.CoalesceSpans(keyGaps, 0)
		}
	}
	return gaps, nil
}

// applyResult merges one job's outcome into the archive and report.
// Called in per-stream submission order by the pool's collector, so no
// locking is needed.
func (e *Engine) applyResult(ctx context.Context, req Request, res scheduler.Result, report *Report) {
	// Merges must land even when the run is being cancelled
	ctx = context.WithoutCancel(ctx)

	if res.Err != nil {
		var fe *fdsn.FetchError
		if errors.As(res.Err, &fe) {
			observability.RecordFetchError(fe.Kind.String())
		}
		switch {
		case fdsn.IsNoData(res.Err):
			if req.MarkEmptySpans {
				if err := e.writer.MarkCovered(ctx, res.Job.Key, res.Job.Span); err != nil {
					e.logger.Printf("WARNING: mark empty span %s %s: %v", res.Job.Key, res.Job.Span, err)
				}
				report.SpansSkipped++
				return
			}
			report.SpansFailed = append(report.SpansFailed, Failure{
				Key: res.Job.Key, Span: res.Job.Span, Reason: "no data",
			})
		case errors.Is(res.Err, context.Canceled):
			report.SpansFailed = append(report.SpansFailed, Failure{
				Key: res.Job.Key, Span: res.Job.Span, Reason: "cancelled",
			})
		default:
			report.SpansFailed = append(report.SpansFailed, Failure{
				Key: res.Job.Key, Span: res.Job.Span, Reason: res.Err.Error(),
			})
		}
		return
	}

	for _, chunk := range res.Chunks {
		if err := e.writer.Merge(ctx, chunk); err != nil {
			e.logger.Printf("WARNING: merge %s %s: %v", chunk.Key, chunk.Span(), err)
			report.SpansFailed = append(report.SpansFailed, Failure{
				Key: chunk.Key, Span: chunk.Span(), Reason: err.Error(),
			})
			continue
		}
		report.SamplesMerged += int64(len(chunk.Samples))
	}
	report.SpansFetched++
}

// SyncArchive rebuilds the coverage index from the files on disk. Used
// after restoring an archive or when the index is suspected stale.
func (e *Engine) SyncArchive(ctx context.Context) error {
	if e.archive == nil {
		return errors.New("no archive configured")
	}

	var spans int
	err := e.archive.Scan(func(key domain.StreamKey, span domain.TimeSpan) error {
		if err := e.coverage.MergeSpan(ctx, key, span, e.tol); err != nil {
			return fmt.Errorf("record %s %s: %w", key, span, err)
		}
		spans++
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan archive: %w", err)
	}

	if err := e.coverage.Coalesce(ctx, e.tol); err != nil {
		return fmt.Errorf("coalesce coverage: %w", err)
	}
	e.logger.Printf("archive sync recorded %d spans", spans)
	return nil
}

func withWindow(q fdsn.EventQuery, window domain.TimeSpan) fdsn.EventQuery {
	if !q.Window.Valid() {
		q.Window = window
	}
	return q
}

// stationNames strips network prefixes from NET.STA codes for the
// station query parameter.
func stationNames(codes []string) []string {
	names := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, sta, ok := splitStationCode(code); ok {
			names = append(names, sta)
		} else {
			names = append(names, code)
		}
	}
	return names
}

func splitStationCode(code string) (network, station string, ok bool) {
	for i := 0; i < len(code); i++ {
		if code[i] == '.' {
			return code[:i], code[i+1:], code[:i] != "" && code[i+1:] != ""
		}
	}
	return "", "", false
}

// mergeEntries appends forced entries not already present, keeping only
// those matching the forced code list.
func mergeEntries(entries, forced []domain.ChannelEntry, codes []string) []domain.ChannelEntry {
	wanted := make(map[string]bool, len(codes))
	for _, code := range codes {
		wanted[code] = true
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		seen[entry.Key().String()+"/"+entry.EpochStart.String()] = true
	}

	for _, entry := range forced {
		code := entry.Network + "." + entry.Station
		if !wanted[code] && !wanted[entry.Station] {
			continue
		}
		id := entry.Key().String() + "/" + entry.EpochStart.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		entries = append(entries, entry)
	}
	return entries
}
