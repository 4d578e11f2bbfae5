package acquire

import (
	"context"
	"errors"
	"log"
	"time"

	"seisvault/internal/archive"
	"seisvault/internal/domain"
	"seisvault/internal/storage"
)

// DefaultCoalesceInterval is how often the live service compacts the
// coverage index while streaming.
const DefaultCoalesceInterval = 10 * time.Minute

// FeedSource is a push source of waveform chunks.
type FeedSource interface {
	Subscribe(ctx context.Context, patterns []string) (<-chan *domain.SeriesChunk, error)
}

// LiveOptions configures a Live service.
type LiveOptions struct {
	Source   FeedSource
	Writer   *archive.Writer
	Coverage storage.CoverageStore
	// Patterns are the stream patterns to subscribe to.
	Patterns []string
	// CoalesceInterval is how often the coverage index is compacted.
	// Zero means the default.
	CoalesceInterval time.Duration
	// GapTolerance is the coalescing tolerance.
	GapTolerance time.Duration
	Logger       *log.Logger
}

// Live consumes a real-time feed and merges every record into the
// archive as it arrives, keeping the coverage index current.
type Live struct {
	source   FeedSource
	writer   *archive.Writer
	coverage storage.CoverageStore
	patterns []string
	interval time.Duration
	tol      time.Duration
	logger   *log.Logger

	// Merged counts records applied, for tests and status logging.
	merged int64
}

// NewLive creates a Live service from opts.
func NewLive(opts LiveOptions) (*Live, error) {
	if opts.Source == nil {
		return nil, errors.New("feed source is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("archive writer is required")
	}
	if opts.Coverage == nil {
		return nil, errors.New("coverage store is required")
	}
	if len(opts.Patterns) == 0 {
		return nil, errors.New("at least one stream pattern is required")
	}

	interval := opts.CoalesceInterval
	if interval <= 0 {
		interval = DefaultCoalesceInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Live{
		source:   opts.Source,
		writer:   opts.Writer,
		coverage: opts.Coverage,
		patterns: opts.Patterns,
		interval: interval,
		tol:      opts.GapTolerance,
		logger:   logger,
	}, nil
}

// Run subscribes and merges records until ctx is cancelled or the feed
// closes. The final record being written is never cut off: merges run
// detached from ctx.
func (l *Live) Run(ctx context.Context) error {
	records, err := l.source.Subscribe(ctx, l.patterns)
	if err != nil {
		return err
	}
	l.logger.Printf("live: subscribed to %d patterns", len(l.patterns))

	mergeCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := l.coverage.Coalesce(mergeCtx, l.tol); err != nil {
				l.logger.Printf("WARNING: live coverage coalesce failed: %v", err)
			}

		case chunk, ok := <-records:
			if !ok {
				l.logger.Printf("live: feed closed after %d records", l.merged)
				return nil
			}
			if err := l.writer.Merge(mergeCtx, chunk); err != nil {
				l.logger.Printf("WARNING: live merge %s: %v", chunk.Key, err)
				continue
			}
			l.merged++
		}
	}
}
