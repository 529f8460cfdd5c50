// Package batch runs one contiguous slice of the beach list and stores the
// records it fetched as a partial artifact.
package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/logger"
	"github.com/i474232898/beach-weather-cache/internal/metrics"
	"github.com/i474232898/beach-weather-cache/internal/partial"
	"github.com/i474232898/beach-weather-cache/internal/partition"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

const (
	DefaultConcurrency = 10
	DefaultItemTimeout = 10 * time.Second
)

type Config struct {
	Concurrency int
	ItemTimeout time.Duration
}

// Result summarizes one batch. Skipped maps a beach key to the reason no
// record was produced for it.
type Result struct {
	BatchIndex int               `json:"batch_index"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Fetched    int               `json:"fetched"`
	Skipped    map[string]string `json:"skipped,omitempty"`
}

type Worker struct {
	fetcher weather.Fetcher
	store   partial.Store
	cfg     Config
	metrics metrics.Recorder
	now     func() time.Time
}

func NewWorker(fetcher weather.Fetcher, store partial.Store, cfg Config, rec metrics.Recorder) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = DefaultItemTimeout
	}
	if rec == nil {
		rec = (*metrics.Prometheus)(nil)
	}
	return &Worker{fetcher: fetcher, store: store, cfg: cfg, metrics: rec, now: time.Now}
}

type outcome struct {
	key    string
	record weather.Record
	reason string
}

// Run fetches items[start:end) for the given batch index and writes the
// artifact, empty or not. An index past the last batch is a no-op that still
// writes an empty artifact. Item failures are recorded in Result.Skipped and
// never fail the batch; only an invalid size or a failed artifact write does.
func (w *Worker) Run(ctx context.Context, runID string, items []beach.Beach, size, index int) (Result, error) {
	if size <= 0 {
		return Result{BatchIndex: index}, fmt.Errorf("batch %d: %w", index, partition.ErrInvalidSize)
	}
	if index < 0 {
		return Result{BatchIndex: index}, fmt.Errorf("batch %d: negative index", index)
	}

	start, end := partition.Range(len(items), size, index)
	res := Result{BatchIndex: index, Start: start, End: end, Skipped: map[string]string{}}
	if start == end {
		logger.Infof("batch %d: no beaches in range (total %d, size %d)", index, len(items), size)
	} else {
		logger.Infof("batch %d: fetching beaches %d-%d of %d", index, start, end-1, len(items))
	}

	slice := items[start:end]
	outcomes := make([]outcome, len(slice))

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for i, b := range slice {
		g.Go(func() error {
			outcomes[i] = w.fetchOne(ctx, index, b)
			return nil
		})
	}
	_ = g.Wait()

	entries := make(weather.Cache, len(slice))
	for _, o := range outcomes {
		if o.reason != "" {
			res.Skipped[o.key] = o.reason
			continue
		}
		entries[o.key] = o.record
	}
	res.Fetched = len(entries)

	artifact := partial.Artifact{
		RunID:      runID,
		BatchIndex: index,
		CreatedAt:  w.now().UTC(),
		Entries:    entries,
	}
	if err := w.store.Put(ctx, artifact); err != nil {
		return res, fmt.Errorf("batch %d: store artifact: %w", index, err)
	}

	logger.Infof("batch %d: stored %d records, skipped %d", index, res.Fetched, len(res.Skipped))
	return res, nil
}

func (w *Worker) fetchOne(ctx context.Context, index int, b beach.Beach) outcome {
	key := b.Key()

	ictx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout)
	defer cancel()

	rec, err := w.fetcher.Fetch(ictx, b)
	if err != nil {
		reason := weather.Classify(err)
		if ictx.Err() != nil {
			reason = weather.ReasonTimeout
		}
		logger.Warnf("batch %d: skipping %s (%s): %v", index, b.Name, reason, err)
		w.metrics.ItemSkipped(index, reason)
		return outcome{key: key, reason: reason}
	}

	w.metrics.ItemFetched(index)
	logger.Debugf("batch %d: fetched %s", index, b.Name)
	return outcome{key: key, record: rec}
}
