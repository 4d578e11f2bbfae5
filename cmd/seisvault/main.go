package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seisvault/internal/acquire"
	"seisvault/internal/archive"
	"seisvault/internal/config"
	"seisvault/internal/fdsn"
	"seisvault/internal/inventory"
	"seisvault/internal/observability"
	"seisvault/internal/scheduler"
	"seisvault/internal/sds"
	"seisvault/internal/storage"
	chstore "seisvault/internal/storage/clickhouse"
	"seisvault/internal/storage/memory"
	"seisvault/internal/storage/migrations"
	pgstore "seisvault/internal/storage/postgres"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML configuration file")
	mode := flag.String("mode", "", "Acquisition mode: continuous, event, sync, or live (overrides config)")
	fromTime := flag.String("from", "", "Window start (RFC3339, overrides config)")
	toTime := flag.String("to", "", "Window end (RFC3339, overrides config)")
	sdsPath := flag.String("sds", "", "SDS archive root (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory coverage index instead of PostgreSQL")
	markEmpty := flag.Bool("mark-empty", false, "Record definitively empty windows as covered")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[seisvault] ", log.LstdFlags|log.Lshortfile)

	if *configPath == "" {
		logger.Fatal("--config is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	applyOverrides(cfg, *mode, *fromTime, *toTime, *sdsPath, *postgresDSN)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	switch cfg.DownloadType {
	case "continuous", "event":
		err = runAcquire(ctx, logger, cfg, *useMemory, *markEmpty)
	case "sync":
		err = runSync(ctx, logger, cfg, *useMemory)
	case "live":
		err = runLive(ctx, logger, cfg, *useMemory)
	default:
		logger.Fatalf("Unknown mode: %s", cfg.DownloadType)
	}

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// applyOverrides lets flags win over the config file.
func applyOverrides(cfg *config.Config, mode, fromTime, toTime, sdsPath, postgresDSN string) {
	if mode != "" {
		cfg.DownloadType = mode
	}
	if fromTime != "" {
		cfg.StartTime = fromTime
	}
	if toTime != "" {
		cfg.EndTime = toTime
	}
	if sdsPath != "" {
		cfg.SDSPath = sdsPath
	}
	if postgresDSN != "" {
		cfg.PostgresDSN = postgresDSN
	}
}

// buildStores opens the coverage index and optional stores. The
// returned cleanup closes whatever was opened.
func buildStores(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory bool) (storage.CoverageStore, storage.ArrivalStore, storage.SampleTimeseriesStore, func(), error) {
	if useMemory {
		return memory.NewCoverageStore(), memory.NewArrivalStore(), nil, func() {}, nil
	}
	if cfg.PostgresDSN == "" {
		return nil, nil, nil, nil, fmt.Errorf("postgres_dsn is required (use --use-memory for an in-memory index)")
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	cleanup := func() { pool.Close() }

	var mirror storage.SampleTimeseriesStore
	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		mirror = chstore.NewSampleTimeseriesStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
		logger.Println("Mirroring samples to ClickHouse")
	}

	return pgstore.NewCoverageStore(pool), pgstore.NewArrivalStore(pool), mirror, cleanup, nil
}

// buildEngine wires the acquisition engine from the configuration.
func buildEngine(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory bool) (*acquire.Engine, func(), error) {
	coverage, arrivals, mirror, cleanup, err := buildStores(ctx, logger, cfg, useMemory)
	if err != nil {
		return nil, nil, err
	}

	arch := sds.NewArchive(cfg.SDSPath)
	writer, err := archive.NewWriter(archive.WriterOptions{
		Archive:      arch,
		Coverage:     coverage,
		Mirror:       mirror,
		GapTolerance: cfg.GapTolerance(),
		Logger:       logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	client := fdsn.NewClient(cfg.Waveform.Endpoint,
		fdsn.WithTimeout(time.Duration(cfg.Waveform.TimeoutSec)*time.Second),
		fdsn.WithCredentials(fdsn.NewCredentialResolver(cfg.DomainCredentials())),
	)

	pool := scheduler.NewPool(scheduler.PoolOptions{
		Fetcher:   client,
		Workers:   cfg.NumWorkers,
		Retryable: fdsn.IsRetryable,
		Logger:    logger,
	})

	engine, err := acquire.NewEngine(acquire.EngineOptions{
		Inventory:      client,
		Catalog:        client,
		Pool:           pool,
		Writer:         writer,
		Coverage:       coverage,
		Archive:        arch,
		Arrivals:       arrivals,
		Resolver:       inventory.NewResolver(cfg.Waveform.ChannelPref, cfg.Waveform.LocationPref),
		GapTolerance:   cfg.GapTolerance(),
		DaysPerRequest: cfg.Waveform.DaysPerRequest,
		Logger:         logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}

// runAcquire runs one continuous or event acquisition pass.
func runAcquire(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory, markEmpty bool) error {
	engine, cleanup, err := buildEngine(ctx, logger, cfg, useMemory)
	if err != nil {
		return err
	}
	defer cleanup()

	window, err := cfg.Window()
	if err != nil {
		return err
	}
	if window.Start.IsZero() {
		window.Start = time.Now().UTC().Add(-24 * time.Hour)
	}
	if window.End.IsZero() {
		window.End = time.Now().UTC()
	}

	req := acquire.Request{
		Mode:   acquire.Mode(cfg.DownloadType),
		Window: window,
		Stations: fdsn.StationQuery{
			Networks:     cfg.Station.Networks,
			Stations:     cfg.Station.Stations,
			MinLatitude:  cfg.Station.MinLatitude,
			MaxLatitude:  cfg.Station.MaxLatitude,
			MinLongitude: cfg.Station.MinLongitude,
			MaxLongitude: cfg.Station.MaxLongitude,
			Latitude:     cfg.Station.Latitude,
			Longitude:    cfg.Station.Longitude,
			MaxRadius:    cfg.Station.MaxRadius,
		},
		Events: fdsn.EventQuery{
			MinMagnitude: cfg.Event.MinMagnitude,
			Latitude:     cfg.Station.Latitude,
			Longitude:    cfg.Station.Longitude,
			MinRadius:    cfg.Event.MinRadius,
			MaxRadius:    cfg.Event.MaxRadius,
		},
		BeforeP:         time.Duration(cfg.Event.BeforePSec) * time.Second,
		AfterP:          time.Duration(cfg.Event.AfterPSec) * time.Second,
		ForceStations:   cfg.Station.Force,
		ExcludeStations: cfg.Station.Exclude,
		MarkEmptySpans:  markEmpty,
	}

	logger.Printf("Starting %s acquisition for %s", cfg.DownloadType, window)
	report, err := engine.Acquire(ctx, req)
	if err != nil {
		return err
	}

	logger.Printf("Run complete: %d fetched, %d skipped, %d failed, %d samples in %v",
		report.SpansFetched, report.SpansSkipped, len(report.SpansFailed),
		report.SamplesMerged, report.Duration)
	for _, failure := range report.SpansFailed {
		logger.Printf("  failed: %s", failure)
	}
	return nil
}

// runSync rebuilds the coverage index from the archive on disk.
func runSync(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory bool) error {
	engine, cleanup, err := buildEngine(ctx, logger, cfg, useMemory)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Printf("Syncing coverage index from %s", cfg.SDSPath)
	return engine.SyncArchive(ctx)
}

// runLive consumes the real-time feed.
func runLive(ctx context.Context, logger *log.Logger, cfg *config.Config, useMemory bool) error {
	if cfg.Waveform.FeedEndpoint == "" {
		return fmt.Errorf("waveform.feed_endpoint is required for live mode")
	}

	coverage, _, mirror, cleanup, err := buildStores(ctx, logger, cfg, useMemory)
	if err != nil {
		return err
	}
	defer cleanup()

	writer, err := archive.NewWriter(archive.WriterOptions{
		Archive:      sds.NewArchive(cfg.SDSPath),
		Coverage:     coverage,
		Mirror:       mirror,
		GapTolerance: cfg.GapTolerance(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	feed, err := fdsn.NewFeed(ctx, cfg.Waveform.FeedEndpoint, nil, logger)
	if err != nil {
		return fmt.Errorf("connect to feed: %w", err)
	}
	defer feed.Close()

	live, err := acquire.NewLive(acquire.LiveOptions{
		Source:       feed,
		Writer:       writer,
		Coverage:     coverage,
		Patterns:     livePatterns(cfg),
		GapTolerance: cfg.GapTolerance(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	logger.Println("Starting live acquisition...")
	return live.Run(ctx)
}

// livePatterns derives feed subscription patterns from the station
// selection.
func livePatterns(cfg *config.Config) []string {
	var patterns []string
	for _, sta := range cfg.Station.Stations {
		for _, net := range cfg.Station.Networks {
			patterns = append(patterns, fmt.Sprintf("%s.%s.*.*", net, sta))
		}
	}
	if len(patterns) == 0 {
		for _, net := range cfg.Station.Networks {
			patterns = append(patterns, net+".*.*.*")
		}
	}
	if len(patterns) == 0 {
		patterns = []string{"*.*.*.*"}
	}
	return patterns
}
