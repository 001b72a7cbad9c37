// Package metrics exposes Prometheus collectors for the monitor service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pollsTotal            *prometheus.CounterVec
	publicationsTotal     prometheus.Counter
	alertsTotal           *prometheus.CounterVec
	cyclesTotal           prometheus.Counter
	taskRetriesTotal      *prometheus.CounterVec
	queueDepth            prometheus.Gauge
	activeWorkers         prometheus.Gauge
	rateLimitDelaySeconds prometheus.Histogram
	feedRequestSeconds    *prometheus.HistogramVec
	httpRequestsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_polls_total",
				Help: "Total number of subject polls, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		publicationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_publications_total",
				Help: "Total number of newly persisted publications.",
			},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_alerts_total",
				Help: "Total number of alerts created, labeled by kind.",
			},
			[]string{"kind"},
		)

		cyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_cycles_total",
				Help: "Total number of dispatcher cycle firings.",
			},
		)

		taskRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_task_retries_total",
				Help: "Total number of task retry attempts, labeled by task kind.",
			},
			[]string{"kind"},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "monitor_queue_depth",
				Help: "Number of tasks waiting on the distribution queue.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "monitor_active_workers",
				Help: "Number of workers currently executing a task.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monitor_rate_limit_delay_seconds",
				Help:    "Histogram of waits imposed by the shared feed rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		feedRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monitor_feed_request_duration_seconds",
				Help:    "Histogram of feed query latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePoll increments the poll counter for the given mode and outcome.
func ObservePoll(mode string, outcome string) {
	pollsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObservePublication counts one newly persisted publication.
func ObservePublication() {
	publicationsTotal.Inc()
}

// ObserveAlert counts one created alert of the given kind.
func ObserveAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

// ObserveCycle counts one dispatcher firing.
func ObserveCycle() {
	cyclesTotal.Inc()
}

// ObserveTaskRetry counts one retry attempt for the given task kind.
func ObserveTaskRetry(kind string) {
	taskRetriesTotal.WithLabelValues(kind).Inc()
}

// SetQueueDepth records the current distribution queue depth.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveFeedRequest records a feed query latency.
func ObserveFeedRequest(outcome string, d time.Duration) {
	feedRequestSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request counter.
func ObserveHTTPRequest(method string, code int) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
