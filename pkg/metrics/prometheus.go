// Package metrics provides Prometheus metrics for the campus feed service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the feed service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	feedSizeBuckets []float64
	registry        prometheus.Registerer

	// Ranking
	rankInvocations prometheus.Counter
	rankLatency     prometheus.Histogram
	feedSize        prometheus.Histogram
	postsRanked     prometheus.Counter
	postsDropped    prometheus.Counter

	// Feed cache
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheErrors        prometheus.Counter
	cacheStaleWrites   prometheus.Counter
	cacheInvalidations *prometheus.CounterVec

	// Change notifications
	changesReceived  *prometheus.CounterVec
	changesDuplicate prometheus.Counter
	changesApplied   prometheus.Counter
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueRejected    *prometheus.CounterVec

	// Workers
	workerCount   prometheus.Gauge
	workerErrors  prometheus.Counter
	workerLatency prometheus.Histogram

	// Data sources
	sourceLatency *prometheus.HistogramVec
	sourceErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPause        prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "campusfeed",
		subsystem:       "feed",
		latencyBuckets:  prometheus.DefBuckets,
		feedSizeBuckets: prometheus.ExponentialBuckets(1, 2, 12),
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.latencyBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.rankInvocations = m.counter("rank_invocations_total", "Total number of feed ranking runs")
	m.rankLatency = m.histogram("rank_latency_milliseconds", "Feed ranking latency in milliseconds", m.latencyBuckets)
	m.feedSize = m.histogram("feed_size_posts", "Posts per ranked feed", m.feedSizeBuckets)
	m.postsRanked = m.counter("posts_ranked_total", "Total number of posts emitted by the ranker")
	m.postsDropped = m.counter("posts_dropped_total", "Total number of posts dropped because their club did not resolve")

	m.cacheHits = m.counter("cache_hits_total", "Feed cache hits")
	m.cacheMisses = m.counter("cache_misses_total", "Feed cache misses")
	m.cacheErrors = m.counter("cache_errors_total", "Feed cache backend errors")
	m.cacheStaleWrites = m.counter("cache_stale_writes_total", "Feed writes dropped because an invalidation ran during ranking")
	m.cacheInvalidations = m.counterVec("cache_invalidations_total", "Feed cache invalidations by scope", "scope")

	m.changesReceived = m.counterVec("changes_received_total", "Change notifications received by table", "table")
	m.changesDuplicate = m.counter("changes_duplicate_total", "Duplicate change notifications ignored")
	m.changesApplied = m.counter("changes_applied_total", "Change notifications applied by workers")
	m.queueSize = m.gauge("queue_size", "Current size of the change queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the change queue")
	m.queueRejected = m.counterVec("queue_rejected_total", "Changes rejected by the queue by reason", "reason")

	m.workerCount = m.gauge("worker_count", "Number of change workers")
	m.workerErrors = m.counter("worker_errors_total", "Errors while applying changes")
	m.workerLatency = m.histogram("worker_latency_milliseconds", "Change processing latency in milliseconds", m.latencyBuckets)

	m.sourceLatency = m.histogramVec("source_latency_milliseconds", "Data source query latency in milliseconds", "source")
	m.sourceErrors = m.counterVec("source_errors_total", "Data source query errors", "source")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.memoryUsage = m.gauge("memory_usage_bytes", "Heap bytes allocated")
	m.goroutineCount = m.gauge("goroutines", "Number of goroutines")
	m.gcPause = m.histogram("gc_pause_milliseconds", "Average GC pause in milliseconds", m.latencyBuckets)
}

// RecordRank records one ranking run.
func RecordRank(latencyMs float64, ranked, dropped int) {
	globalManager.rankInvocations.Inc()
	globalManager.rankLatency.Observe(latencyMs)
	globalManager.feedSize.Observe(float64(ranked))
	globalManager.postsRanked.Add(float64(ranked))
	if dropped > 0 {
		globalManager.postsDropped.Add(float64(dropped))
	}
}

// RecordCacheHit records a feed cache hit.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss records a feed cache miss.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordCacheError records a feed cache backend error.
func RecordCacheError() { globalManager.cacheErrors.Inc() }

// RecordCacheStaleWrite records a feed write dropped on a version mismatch.
func RecordCacheStaleWrite() { globalManager.cacheStaleWrites.Inc() }

// RecordCacheInvalidation records an invalidation; scope is "viewer" or "all".
func RecordCacheInvalidation(scope string) {
	globalManager.cacheInvalidations.WithLabelValues(scope).Inc()
}

// RecordChangeReceived records an accepted change notification for table.
func RecordChangeReceived(table string) {
	globalManager.changesReceived.WithLabelValues(table).Inc()
}

// RecordChangeDuplicate records a duplicate change notification.
func RecordChangeDuplicate() { globalManager.changesDuplicate.Inc() }

// RecordChangeApplied records a change applied by a worker.
func RecordChangeApplied() { globalManager.changesApplied.Inc() }

// UpdateQueueSize sets the current change queue length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the change queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueRejected records a rejected enqueue.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of change workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerError records a worker failure.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordWorkerLatency records change processing latency.
func RecordWorkerLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordSourceQuery records latency of a data source query and whether it failed.
func RecordSourceQuery(source string, latencyMs float64, failed bool) {
	globalManager.sourceLatency.WithLabelValues(source).Observe(latencyMs)
	if failed {
		globalManager.sourceErrors.WithLabelValues(source).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom registry for serving metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// UpdateMemoryUsage sets the allocated heap size.
func UpdateMemoryUsage(bytes uint64) { globalManager.memoryUsage.Set(float64(bytes)) }

// UpdateGoroutineCount sets the goroutine gauge.
func UpdateGoroutineCount(n int) { globalManager.goroutineCount.Set(float64(n)) }

// RecordGCPause observes an average GC pause.
func RecordGCPause(ms float64) { globalManager.gcPause.Observe(ms) }
