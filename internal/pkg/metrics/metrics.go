package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog_sync",
			Name:      "jobs_total",
			Help:      "Sync jobs by type and final status.",
		},
		[]string{"type", "status"},
	)

	bundlesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog_sync",
			Name:      "bundles_processed_total",
			Help:      "Bundles processed by provider.",
		},
		[]string{"provider"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "catalog_sync",
			Name:      "queue_depth",
			Help:      "Jobs waiting or in flight.",
		},
		[]string{"state"},
	)

	fullSyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "catalog_sync",
			Name:      "full_sync_duration_seconds",
			Help:      "Wall time of full catalog syncs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"provider"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncJobs, bundlesProcessed, queueDepth, fullSyncDuration)
	})
}

// IncJob counts one finished job.
func IncJob(jobType, status string) {
	syncJobs.WithLabelValues(jobType, status).Inc()
}

// AddBundlesProcessed counts transformed-and-upserted bundles.
func AddBundlesProcessed(provider string, n int) {
	bundlesProcessed.WithLabelValues(provider).Add(float64(n))
}

// SetQueueDepth records a queue state gauge.
func SetQueueDepth(state string, n int64) {
	queueDepth.WithLabelValues(state).Set(float64(n))
}

// ObserveFullSync records the duration of one full sync.
func ObserveFullSync(provider string, d time.Duration) {
	fullSyncDuration.WithLabelValues(provider).Observe(d.Seconds())
}
