// Package metrics exposes pipeline counters on a dedicated Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Recorder receives pipeline events. A nil *Prometheus is a valid no-op Recorder.
type Recorder interface {
	ItemFetched(batch int)
	ItemSkipped(batch int, reason string)
	BatchFinished(status string, d time.Duration)
	Committed(outcome string)
	CacheEntries(n int)
}

// Prometheus is the Recorder backed by client_golang.
type Prometheus struct {
	registry *prometheus.Registry

	itemsFetched  prometheus.Counter
	itemsSkipped  *prometheus.CounterVec
	batchStatus   *prometheus.CounterVec
	batchDuration prometheus.Histogram
	commits       *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Prometheus{
		registry: registry,
		itemsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beach_weather_items_fetched_total",
			Help: "Beaches whose weather record was fetched.",
		}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beach_weather_items_skipped_total",
			Help: "Beaches skipped in a batch, by reason.",
		}, []string{"reason"}),
		batchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beach_weather_batches_total",
			Help: "Finished batches by terminal status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beach_weather_batch_duration_seconds",
			Help:    "Wall time of one batch.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beach_weather_commits_total",
			Help: "Cache commits by outcome.",
		}, []string{"outcome"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beach_weather_cache_entries",
			Help: "Entries in the combined cache after the last run.",
		}),
	}

	registry.MustRegister(r.itemsFetched, r.itemsSkipped, r.batchStatus, r.batchDuration, r.commits, r.cacheEntries)
	return r
}

// Registry returns the registry to serve on /metrics.
func (r *Prometheus) Registry() *prometheus.Registry {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Prometheus) ItemFetched(int) {
	if r == nil {
		return
	}
	r.itemsFetched.Inc()
}

func (r *Prometheus) ItemSkipped(_ int, reason string) {
	if r == nil {
		return
	}
	r.itemsSkipped.WithLabelValues(reason).Inc()
}

func (r *Prometheus) BatchFinished(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.batchStatus.WithLabelValues(status).Inc()
	r.batchDuration.Observe(d.Seconds())
}

func (r *Prometheus) Committed(outcome string) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(outcome).Inc()
}

func (r *Prometheus) CacheEntries(n int) {
	if r == nil {
		return
	}
	r.cacheEntries.Set(float64(n))
}
