package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotwatch",
			Name:      "ticks_total",
			Help:      "Processing loop ticks executed.",
		},
	)

	itemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotwatch",
			Name:      "items_processed_total",
			Help:      "Queue items processed by resulting status.",
		},
		[]string{"status"},
	)

	processingErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotwatch",
			Name:      "processing_errors_total",
			Help:      "Errors raised during batch passes.",
		},
	)

	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slotwatch",
			Name:      "queue_length",
			Help:      "Items currently in the retry queue.",
		},
	)

	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "slotwatch",
			Name:      "batch_pass_duration_seconds",
			Help:      "Duration of one date-grouped batch pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotwatch",
			Name:      "http_requests_total",
			Help:      "Admin API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ticksTotal,
			itemsProcessed,
			processingErrors,
			queueLength,
			batchDuration,
			httpRequests,
		)
	})
}

// IncTick counts one loop tick.
func IncTick() {
	ticksTotal.Inc()
}

// IncProcessed counts an item landing in a status.
func IncProcessed(status string) {
	itemsProcessed.WithLabelValues(status).Inc()
}

// IncProcessingError counts a non-fatal batch-pass error.
func IncProcessingError() {
	processingErrors.Inc()
}

// SetQueueLength records the current queue size.
func SetQueueLength(n int) {
	queueLength.Set(float64(n))
}

// ObserveBatchDuration records one batch-pass duration in seconds.
func ObserveBatchDuration(seconds float64) {
	batchDuration.Observe(seconds)
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
