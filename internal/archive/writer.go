package archive

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/observability"
	"seisvault/internal/sds"
	"seisvault/internal/storage"
)

// ErrIndexWrite marks a merge where the samples landed on disk but the
// coverage index update failed. The data is safe; a later merge or an
// archive sync will repair the index.
var ErrIndexWrite = errors.New("coverage index write failed")

const writerStripes = 64

// Writer applies fetched chunks to the archive: samples go to the SDS
// tree first, then the covered span is recorded in the coverage index.
// Merges for the same stream are serialized on a striped lock, so
// concurrent workers on different streams do not contend.
type Writer struct {
	archive  *sds.Archive
	coverage storage.CoverageStore
	mirror   storage.SampleTimeseriesStore
	tol      time.Duration
	logger   *log.Logger

	locks [writerStripes]sync.Mutex
}

// WriterOptions configures a Writer. Archive and Coverage are required;
// Mirror is optional and failures there are logged, not returned.
type WriterOptions struct {
	Archive      *sds.Archive
	Coverage     storage.CoverageStore
	Mirror       storage.SampleTimeseriesStore
	GapTolerance time.Duration
	Logger       *log.Logger
}

// NewWriter creates a Writer from opts.
func NewWriter(opts WriterOptions) (*Writer, error) {
	if opts.Archive == nil {
		return nil, errors.New("archive is required")
	}
	if opts.Coverage == nil {
		return nil, errors.New("coverage store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Writer{
		archive:  opts.Archive,
		coverage: opts.Coverage,
		mirror:   opts.Mirror,
		tol:      opts.GapTolerance,
		logger:   logger,
	}, nil
}

// Merge writes the chunk's samples to the archive and records its span
// as covered. Replaying the same chunk is a no-op for both the files
// and the index. Empty chunks are ignored.
func (w *Writer) Merge(ctx context.Context, chunk *domain.SeriesChunk) (err error) {
	if chunk == nil || chunk.Empty() {
		return nil
	}
	if err := chunk.Key.Validate(); err != nil {
		return fmt.Errorf("merge chunk: %w", err)
	}

	started := time.Now()
	defer func() {
		observability.RecordMerge(len(chunk.Samples), time.Since(started).Seconds(), err)
	}()

	lock := w.lockFor(chunk.Key)
	lock.Lock()
	defer lock.Unlock()

	if err := w.archive.WriteChunk(chunk); err != nil {
		return fmt.Errorf("write samples for %s: %w", chunk.Key, err)
	}

	if w.mirror != nil {
		if err := w.mirror.InsertChunk(ctx, chunk); err != nil {
			w.logger.Printf("WARNING: mirror insert for %s failed: %v", chunk.Key, err)
		}
	}

	if err := w.coverage.MergeSpan(ctx, chunk.Key, chunk.Span(), w.tol); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIndexWrite, chunk.Key, err)
	}
	return nil
}

// MarkCovered records a span as covered without writing any samples.
// Used when a source definitively reports no data for the window.
func (w *Writer) MarkCovered(ctx context.Context, key domain.StreamKey, span domain.TimeSpan) error {
	if !span.Valid() {
		return fmt.Errorf("mark covered %s: %w", key, storage.ErrInvalidInput)
	}

	lock := w.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := w.coverage.MergeSpan(ctx, key, span, w.tol); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIndexWrite, key, err)
	}
	return nil
}

func (w *Writer) lockFor(key domain.StreamKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return &w.locks[h.Sum32()%writerStripes]
}
