package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"seisvault/internal/domain"
	"seisvault/internal/observability"
	"seisvault/internal/planner"
)

// Default configuration values.
const (
	DefaultWorkers     = 4
	DefaultJobTimeout  = 5 * time.Minute
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultBackoffMult = 2.0
)

// Result is the outcome of one job.
type Result struct {
	Job    planner.Job
	Chunks []*domain.SeriesChunk
	Err    error
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Fetcher Fetcher
	// Workers is the number of concurrent fetches. Defaults to 4.
	Workers int
	// JobTimeout bounds one fetch attempt including its retries.
	JobTimeout time.Duration
	// MaxRetries is how many times a retryable failure is attempted
	// again inside the pool, on top of any retries the fetcher does.
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	// Retryable decides whether a fetch error is worth another attempt.
	// Nil means no pool-level retries.
	Retryable func(error) bool
	Logger    *log.Logger
}

// Pool dispatches jobs to workers and hands results to an apply
// callback in per-stream submission order.
type Pool struct {
	fetcher     Fetcher
	workers     int
	jobTimeout  time.Duration
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	retryable   func(error) bool
	logger      *log.Logger
}

// NewPool creates a Pool from opts. Fetcher is required.
func NewPool(opts PoolOptions) *Pool {
	p := &Pool{
		fetcher:     opts.Fetcher,
		workers:     opts.Workers,
		jobTimeout:  opts.JobTimeout,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		maxDelay:    opts.MaxDelay,
		backoffMult: DefaultBackoffMult,
		retryable:   opts.Retryable,
		logger:      opts.Logger,
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkers
	}
	if p.jobTimeout <= 0 {
		p.jobTimeout = DefaultJobTimeout
	}
	if p.maxRetries < 0 {
		p.maxRetries = DefaultMaxRetries
	}
	if p.retryDelay <= 0 {
		p.retryDelay = DefaultRetryDelay
	}
	if p.maxDelay <= 0 {
		p.maxDelay = DefaultMaxDelay
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p
}

// Run executes jobs and calls apply once per job, in Seq order per
// stream. Cancelling ctx stops dispatching; fetches already in flight
// run to completion under their own timeout, and their results are
// still applied. Jobs never dispatched come back with ctx's error.
func (p *Pool) Run(ctx context.Context, jobs []planner.Job, apply func(Result)) []Result {
	if len(jobs) == 0 {
		return nil
	}

	jobCh := make(chan planner.Job)
	resultCh := make(chan Result)

	var workers sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range jobCh {
				resultCh <- p.runJob(ctx, job)
			}
		}()
	}

	// Dispatch until done or cancelled; report undispatched jobs so the
	// caller sees exactly one result per job either way.
	go func() {
		defer close(jobCh)
		for i, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				for _, skipped := range jobs[i:] {
					resultCh <- Result{Job: skipped, Err: ctx.Err()}
				}
				return
			}
		}
	}()

	go func() {
		workers.Wait()
		close(resultCh)
	}()

	return p.collect(resultCh, jobs, apply)
}

// runJob fetches one job with pool-level retries. The fetch is detached
// from run cancellation so an accepted job always completes or times
// out on its own.
func (p *Pool) runJob(ctx context.Context, job planner.Job) Result {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.jobTimeout)
	defer cancel()

	observability.RecordFetchDispatched()

	delay := p.retryDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			observability.DefaultMetrics.FetchRetries.Inc()
			p.logger.Printf("retrying %s %s (attempt %d/%d): %v",
				job.Key, job.Span, attempt, p.maxRetries, lastErr)
			select {
			case <-jobCtx.Done():
				return Result{Job: job, Err: jobCtx.Err()}
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * p.backoffMult)
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
		}

		chunks, err := p.fetcher.FetchWaveform(jobCtx, job.Key, job.Span)
		if err == nil {
			return Result{Job: job, Chunks: chunks}
		}
		lastErr = err

		if jobCtx.Err() != nil {
			return Result{Job: job, Err: lastErr}
		}
		if p.retryable == nil || !p.retryable(err) {
			return Result{Job: job, Err: lastErr}
		}
	}

	return Result{Job: job, Err: lastErr}
}

// collect drains results, applying each stream's results in Seq order.
// Out-of-order arrivals wait in a pending buffer until their turn.
func (p *Pool) collect(resultCh <-chan Result, jobs []planner.Job, apply func(Result)) []Result {
	nextSeq := make(map[domain.StreamKey]int, len(jobs))
	pending := make(map[domain.StreamKey]map[int]Result)

	results := make([]Result, 0, len(jobs))
	for res := range resultCh {
		results = append(results, res)
		if apply == nil {
			continue
		}

		key := res.Job.Key
		if pending[key] == nil {
			pending[key] = make(map[int]Result)
		}
		pending[key][res.Job.Seq] = res

		for {
			next, ok := pending[key][nextSeq[key]]
			if !ok {
				break
			}
			delete(pending[key], nextSeq[key])
			nextSeq[key]++
			apply(next)
		}
	}

	return results
}
