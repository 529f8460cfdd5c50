// Package pipeline drives a refresh run: batch workers in parallel, then a
// single aggregation and commit of their results.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/i474232898/beach-weather-cache/internal/aggregate"
	"github.com/i474232898/beach-weather-cache/internal/batch"
	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/cache"
	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/metrics"
	"github.com/i474232898/beach-weather-cache/internal/partial"
	"github.com/i474232898/beach-weather-cache/internal/partition"
	"github.com/i474232898/beach-weather-cache/internal/store"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

// FetcherFactory builds a fresh acquisition client for one batch worker, so
// workers share no client state.
type FetcherFactory func() weather.Fetcher

type Options struct {
	BatchSize int
	// CollectionWindow bounds how long RunAll waits for batches. Zero waits
	// for all of them.
	CollectionWindow time.Duration
	Worker           batch.Config
	Commit           cache.CommitOptions
	PartialRetention time.Duration
}

type Deps struct {
	Partials   partial.Store
	Cache      cache.Store
	NewFetcher FetcherFactory
	Metrics    metrics.Recorder
	History    *store.MemoryStore[Summary]
}

type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = (*metrics.Prometheus)(nil)
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// NewRunID returns a sortable run id.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// RunWorker runs a single batch of an externally coordinated run.
func (p *Pipeline) RunWorker(ctx context.Context, runID string, items []beach.Beach, index int) (batch.Result, error) {
	res, elapsed, err := p.runBatch(ctx, runID, items, index)
	p.deps.Metrics.BatchFinished(string(batchStatus(err)), elapsed)
	return res, err
}

func (p *Pipeline) runBatch(ctx context.Context, runID string, items []beach.Beach, index int) (batch.Result, time.Duration, error) {
	started := p.now()
	w := batch.NewWorker(p.deps.NewFetcher(), p.deps.Partials, p.opts.Worker, p.deps.Metrics)
	res, err := w.Run(ctx, runID, items, p.opts.BatchSize, index)
	return res, p.now().Sub(started), err
}

func batchStatus(err error) BatchStatus {
	if err != nil {
		return BatchFailed
	}
	return BatchSucceeded
}

// RunAggregate merges the artifacts of runID into the durable cache. When
// expected > 0, batches in [0, expected) without an artifact are reported
// missing. Only an unwritable cache store is returned as an error.
func (p *Pipeline) RunAggregate(ctx context.Context, runID string, expected int) (Summary, error) {
	sum := Summary{RunID: runID, StartedAt: p.now(), BatchSize: p.opts.BatchSize, BatchCount: expected}
	err := p.aggregate(ctx, &sum, nil)
	p.finish(ctx, &sum, err)
	return sum, err
}

// RunAll runs every batch of items in-process, waits for them up to the
// collection window, then aggregates and commits once.
func (p *Pipeline) RunAll(ctx context.Context, runID string, items []beach.Beach) (Summary, error) {
	if runID == "" {
		runID = NewRunID(p.now())
	}
	size := p.opts.BatchSize
	count := partition.Count(len(items), size)
	sum := Summary{RunID: runID, StartedAt: p.now(), Items: len(items), BatchSize: size, BatchCount: count}

	if size <= 0 {
		err := fmt.Errorf("%w: %d", partition.ErrInvalidSize, size)
		p.finish(ctx, &sum, err)
		return sum, err
	}
	if err := partition.Check(len(items), size, count); err != nil {
		p.finish(ctx, &sum, err)
		return sum, err
	}

	logger.Infof("run %s: %d beaches in %d batches of %d", runID, len(items), count, size)
	excluded, batchErr := p.runBatches(ctx, runID, items, count, &sum)
	if batchErr != nil {
		// Batch failures are never fatal; they show up as missing batches.
		logger.Warnf("run %s: %v", runID, batchErr)
	}

	err := p.aggregate(ctx, &sum, excluded)
	p.finish(ctx, &sum, err)
	return sum, err
}

// runBatches starts one goroutine per batch and returns the indexes that did
// not finish within the collection window.
func (p *Pipeline) runBatches(ctx context.Context, runID string, items []beach.Beach, count int, sum *Summary) (map[int]bool, error) {
	windowCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.opts.CollectionWindow > 0 {
		windowCtx, cancel = context.WithTimeout(ctx, p.opts.CollectionWindow)
	}
	defer cancel()

	var (
		mu       sync.Mutex
		closed   bool
		outcomes = make([]*BatchOutcome, count)
		errs     *multierror.Error
		wg       sync.WaitGroup
	)

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, elapsed, err := p.runBatch(windowCtx, runID, items, i)

			o := &BatchOutcome{Index: i, Status: batchStatus(err), Fetched: res.Fetched, Skipped: len(res.Skipped)}
			if err != nil {
				o.Error = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			if closed {
				// Already reported as timed out.
				return
			}
			p.deps.Metrics.BatchFinished(string(o.Status), elapsed)
			outcomes[i] = o
			if err != nil {
				errs = multierror.Append(errs, err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-windowCtx.Done():
		logger.Warnf("run %s: collection window closed before all batches finished", runID)
	}

	mu.Lock()
	defer mu.Unlock()
	closed = true

	excluded := map[int]bool{}
	for i, o := range outcomes {
		if o == nil {
			o = &BatchOutcome{Index: i, Status: BatchTimedOut}
			excluded[i] = true
			sum.TimedOut = append(sum.TimedOut, i)
			p.deps.Metrics.BatchFinished(string(BatchTimedOut), p.now().Sub(sum.StartedAt))
		} else if o.Status == BatchFailed {
			sum.Failed = append(sum.Failed, i)
		}
		sum.Batches = append(sum.Batches, *o)
	}
	return excluded, errs.ErrorOrNil()
}

func (p *Pipeline) aggregate(ctx context.Context, sum *Summary, excluded map[int]bool) error {
	base, err := p.deps.Cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load cache: %w", cache.ErrUnwritable, err)
	}

	raws, err := p.deps.Partials.List(ctx, sum.RunID)
	if err != nil {
		// Nothing discoverable: every batch counts as missing and the
		// previous cache stays as it is.
		logger.Errorf("run %s: list partial results: %v", sum.RunID, err)
		raws = nil
	}
	kept := raws[:0]
	for _, r := range raws {
		if excluded[r.BatchIndex] {
			continue
		}
		kept = append(kept, r)
	}

	combined, report := aggregate.Aggregate(kept, base.Cache, sum.BatchCount)
	sum.Found = report.Discovered
	sum.Merged = report.Merged
	sum.Total = report.Total
	sum.Missing = report.Missing
	sum.Corrupt = report.Corrupt

	res, err := cache.Commit(ctx, p.deps.Cache, base, combined, p.opts.Commit)
	sum.Commit = res
	if err != nil {
		return err
	}
	p.deps.Metrics.Committed(string(res.Outcome))
	p.deps.Metrics.CacheEntries(report.Total)
	return nil
}

func (p *Pipeline) finish(ctx context.Context, sum *Summary, err error) {
	sum.FinishedAt = p.now()
	if err != nil {
		sum.Error = err.Error()
	}
	sort.Ints(sum.TimedOut)
	sort.Ints(sum.Failed)
	sum.Log()

	if p.deps.History != nil {
		p.deps.History.Save(*sum)
	}

	if p.opts.PartialRetention > 0 {
		if n, perr := p.deps.Partials.Purge(ctx, p.opts.PartialRetention); perr != nil {
			logger.Warnf("purge partial results: %v", perr)
		} else if n > 0 {
			logger.Infof("purged %d expired partial runs", n)
		}
	}
}
