package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/beach-weather-cache/internal/batch"
	"github.com/i474232898/beach-weather-cache/internal/beach"
	"github.com/i474232898/beach-weather-cache/internal/cache"
	"github.com/i474232898/beach-weather-cache/internal/partial"
	"github.com/i474232898/beach-weather-cache/internal/store"
	"github.com/i474232898/beach-weather-cache/internal/weather"
)

var stamp = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	temp    float64
	block   map[string]chan struct{}
	failFor map[string]error
}

func (f stubFetcher) Fetch(ctx context.Context, b beach.Beach) (weather.Record, error) {
	if ch, ok := f.block[b.Key()]; ok {
		<-ch
	}
	if err, ok := f.failFor[b.Key()]; ok {
		return weather.Record{}, err
	}
	return weather.Record{BeachName: b.Name, Latitude: b.Latitude, Longitude: b.Longitude, AirTemp: weather.Float(f.temp), LastUpdated: stamp}, nil
}

type failingPartials struct {
	partial.Store
	failIndex int
}

func (s failingPartials) Put(ctx context.Context, a partial.Artifact) error {
	if a.BatchIndex == s.failIndex {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, a)
}

// putSignal closes done once the artifact for index has been attempted.
type putSignal struct {
	partial.Store
	index int
	done  chan struct{}
}

func (s putSignal) Put(ctx context.Context, a partial.Artifact) error {
	if a.BatchIndex == s.index {
		defer close(s.done)
	}
	return s.Store.Put(ctx, a)
}

type brokenCache struct {
	cache.Store
}

func (brokenCache) Save(context.Context, weather.Cache, string) (string, error) {
	return "", errors.New("read-only file system")
}

func beaches(n int) []beach.Beach {
	out := make([]beach.Beach, n)
	for i := range out {
		out[i] = beach.Beach{Name: fmt.Sprintf("beach-%03d", i), Latitude: 35 + float64(i)/1000, Longitude: 24}
	}
	return out
}

// batchCounter records batch outcomes by status.
type batchCounter struct {
	mu       sync.Mutex
	statuses map[string]int
}

func (c *batchCounter) ItemFetched(int)         {}
func (c *batchCounter) ItemSkipped(int, string) {}
func (c *batchCounter) Committed(string)        {}
func (c *batchCounter) CacheEntries(int)        {}

func (c *batchCounter) BatchFinished(status string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses == nil {
		c.statuses = map[string]int{}
	}
	c.statuses[status]++
}

func (c *batchCounter) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}

type fixture struct {
	partials *partial.FileStore
	cache    *cache.FileStore
	history  *store.MemoryStore[Summary]
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	ps, err := partial.NewFileStore(filepath.Join(dir, "partials"))
	require.NoError(t, err)
	return fixture{
		partials: ps,
		cache:    cache.NewFileStore(filepath.Join(dir, "cache.json")),
		history:  store.NewMemoryStore[Summary](10, 0),
	}
}

func (fx fixture) pipeline(f weather.Fetcher, opts Options) *Pipeline {
	return New(Deps{
		Partials:   fx.partials,
		Cache:      fx.cache,
		NewFetcher: func() weather.Fetcher { return f },
		History:    fx.history,
	}, opts)
}

func TestRunAllCommitsEveryBatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	items := beaches(311)
	p := fx.pipeline(stubFetcher{temp: 20}, Options{BatchSize: 51})

	sum, err := p.RunAll(ctx, "run-1", items)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.BatchCount)
	assert.Equal(t, 7, sum.Found)
	assert.Equal(t, 311, sum.Merged)
	assert.Equal(t, 311, sum.Total)
	assert.Equal(t, cache.OutcomeWritten, sum.Commit.Outcome)
	assert.False(t, sum.Degraded())
	require.Len(t, sum.Batches, 7)
	assert.Equal(t, 5, sum.Batches[6].Fetched)

	snap, err := fx.cache.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Cache, 311)

	again, err := p.RunAll(ctx, "run-2", items)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeNoop, again.Commit.Outcome)
	assert.Equal(t, 2, fx.history.Len())
}

func TestRunAllTimedOutBatchKeepsPreviousValues(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	items := beaches(30)

	_, err := fx.pipeline(stubFetcher{temp: 10}, Options{BatchSize: 10}).RunAll(ctx, "seed", items)
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	slow := stubFetcher{temp: 30, block: map[string]chan struct{}{items[25].Key(): release}}
	p := fx.pipeline(slow, Options{BatchSize: 10, CollectionWindow: 200 * time.Millisecond, Worker: batch.Config{ItemTimeout: time.Minute}})

	sum, err := p.RunAll(ctx, "run-1", items)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, sum.TimedOut)
	assert.Contains(t, sum.Missing, 2)
	assert.Equal(t, BatchTimedOut, sum.Batches[2].Status)
	assert.True(t, sum.Degraded())

	snap, err := fx.cache.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Cache, 30)
	assert.Equal(t, 30.0, *snap.Cache[items[5].Key()].AirTemp)
	assert.Equal(t, 10.0, *snap.Cache[items[25].Key()].AirTemp)
	assert.Equal(t, 10.0, *snap.Cache[items[21].Key()].AirTemp)
}

func TestRunAllLateBatchCountedOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	items := beaches(30)

	release := make(chan struct{})
	slow := stubFetcher{temp: 30, block: map[string]chan struct{}{items[25].Key(): release}}
	counter := &batchCounter{}
	late := putSignal{Store: fx.partials, index: 2, done: make(chan struct{})}
	p := New(Deps{
		Partials:   late,
		Cache:      fx.cache,
		NewFetcher: func() weather.Fetcher { return slow },
		Metrics:    counter,
	}, Options{BatchSize: 10, CollectionWindow: 100 * time.Millisecond, Worker: batch.Config{ItemTimeout: time.Minute}})

	sum, err := p.RunAll(ctx, "run-1", items)
	require.NoError(t, err)
	require.Equal(t, []int{2}, sum.TimedOut)

	// Let the late batch finish.
	close(release)
	select {
	case <-late.done:
	case <-time.After(2 * time.Second):
		t.Fatal("late batch never finished")
	}

	want := map[string]int{string(BatchSucceeded): 2, string(BatchTimedOut): 1}
	assert.Never(t, func() bool {
		return !assert.ObjectsAreEqual(want, counter.snapshot())
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRunAllFailedBatchIsNotFatal(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	items := beaches(20)

	p := New(Deps{
		Partials:   failingPartials{Store: fx.partials, failIndex: 1},
		Cache:      fx.cache,
		NewFetcher: func() weather.Fetcher { return stubFetcher{temp: 1} },
	}, Options{BatchSize: 10})

	sum, err := p.RunAll(ctx, "run-1", items)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sum.Failed)
	assert.Equal(t, []int{1}, sum.Missing)
	assert.Equal(t, 10, sum.Total)
	assert.Contains(t, sum.Batches[1].Error, "disk full")
}

func TestRunAllItemFailuresSkipped(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	items := beaches(51)
	f := stubFetcher{temp: 1, failFor: map[string]error{items[0].Key(): weather.ErrTimeout}}

	sum, err := fx.pipeline(f, Options{BatchSize: 51}).RunAll(ctx, "run-1", items)
	require.NoError(t, err)
	assert.Equal(t, 50, sum.Total)
	assert.Equal(t, 1, sum.Batches[0].Skipped)
}

func TestRunAllUnwritableCacheIsFatal(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	history := store.NewMemoryStore[Summary](10, 0)

	p := New(Deps{
		Partials:   fx.partials,
		Cache:      brokenCache{Store: fx.cache},
		NewFetcher: func() weather.Fetcher { return stubFetcher{temp: 1} },
		History:    history,
	}, Options{BatchSize: 5})

	sum, err := p.RunAll(ctx, "run-1", beaches(7))
	assert.ErrorIs(t, err, cache.ErrUnwritable)
	assert.NotEmpty(t, sum.Error)

	latest, herr := history.Latest()
	require.NoError(t, herr)
	assert.Equal(t, "run-1", latest.RunID)
}

func TestRunAllInvalidBatchSize(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.pipeline(stubFetcher{}, Options{BatchSize: 0}).RunAll(context.Background(), "", beaches(3))
	assert.Error(t, err)
}

func TestWorkersThenAggregate(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	items := beaches(311)
	p := fx.pipeline(stubFetcher{temp: 5}, Options{BatchSize: 45})

	// Batch 7 is past the end and must be a harmless no-op.
	for i := 0; i <= 7; i++ {
		res, err := p.RunWorker(ctx, "dist-1", items, i)
		require.NoError(t, err)
		if i == 6 {
			assert.Equal(t, 270, res.Start)
			assert.Equal(t, 311, res.End)
		}
	}

	sum, err := p.RunAggregate(ctx, "dist-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Found)
	assert.Equal(t, 311, sum.Total)
	assert.Empty(t, sum.Missing)
	assert.Equal(t, cache.OutcomeWritten, sum.Commit.Outcome)
}

func TestAggregateWithNoArtifactsKeepsCache(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	_, err := fx.pipeline(stubFetcher{temp: 1}, Options{BatchSize: 2}).RunAll(ctx, "seed", beaches(4))
	require.NoError(t, err)

	sum, err := fx.pipeline(stubFetcher{}, Options{BatchSize: 2}).RunAggregate(ctx, "never-ran", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, sum.Missing)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, cache.OutcomeNoop, sum.Commit.Outcome)
}

func TestNewRunID(t *testing.T) {
	id := NewRunID(stamp)
	assert.Regexp(t, `^20260701T120000Z-[0-9a-f]{8}$`, id)
}
