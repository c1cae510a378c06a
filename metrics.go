package mdpreview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus instruments. Pool and cache
// counters are registered as snapshot collectors reading the live state
// at scrape time; the instruments held here are driven by the pipeline.
//
// One pipeline per registerer: instrument names are not labeled by
// document, so registering two pipelines on the same registerer panics.
type Metrics struct {
	CyclesTotal        prometheus.Counter
	BlockFailuresTotal prometheus.Counter
	RenderDuration     prometheus.Histogram
}

// newMetrics registers every pipeline instrument on the registerer.
func newMetrics(registerer prometheus.Registerer, pool *WorkerPool, cache *BlockCache) *Metrics {
	factory := promauto.With(registerer)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "mdpreview_renders_total",
		Help: "Total number of block render calls, excluding cache hits",
	}, func() float64 { return float64(pool.Renders()) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "mdpreview_stale_discards_total",
		Help: "Total number of render jobs discarded for carrying a superseded generation",
	}, func() float64 { return float64(pool.StaleDiscards()) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "mdpreview_cache_hits_total",
		Help: "Total number of fragment cache hits",
	}, func() float64 { return float64(cache.Stats().Hits) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "mdpreview_cache_misses_total",
		Help: "Total number of fragment cache misses",
	}, func() float64 { return float64(cache.Stats().Misses) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "mdpreview_cache_evictions_total",
		Help: "Total number of fragments evicted from the cache",
	}, func() float64 { return float64(cache.Stats().Evictions) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mdpreview_cache_bytes",
		Help: "Current size of all cached fragments in bytes",
	}, func() float64 { return float64(cache.Stats().Bytes) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mdpreview_cache_entries",
		Help: "Current number of cached fragments",
	}, func() float64 { return float64(cache.Stats().Entries) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mdpreview_queue_depth",
		Help: "Number of render jobs waiting for a worker",
	}, func() float64 { return float64(pool.QueueDepth()) })

	// Watchdog: a hung render call is never killed, but it is visible.
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mdpreview_oldest_job_age_seconds",
		Help: "Age of the oldest queued render job in seconds",
	}, func() float64 { return pool.OldestJobAge().Seconds() })

	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdpreview_cycles_total",
			Help: "Total number of completed render cycles",
		}),
		BlockFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mdpreview_block_failures_total",
			Help: "Total number of blocks that fell back to escaped source",
		}),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdpreview_render_duration_seconds",
			Help:    "Duration of render cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
	}
}
