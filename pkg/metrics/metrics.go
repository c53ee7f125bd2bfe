package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Cache metrics
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	CacheCoalescedWaits *prometheus.CounterVec
	CacheComputeTime    *prometheus.HistogramVec
	ActiveComputations  prometheus.Gauge

	// Artifact store metrics
	StoreWritesTotal *prometheus.CounterVec
	StoreReadsTotal  *prometheus.CounterVec
	StoreWriteErrors *prometheus.CounterVec

	// Pipeline stage metrics
	StageRequestsTotal *prometheus.CounterVec
	StageLatency       *prometheus.HistogramVec
	StageErrors        *prometheus.CounterVec

	// Collaborator metrics
	CollaboratorRequestsTotal *prometheus.CounterVec
	CollaboratorLatency       *prometheus.HistogramVec

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		CacheHits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_cache_hits_total",
				Help: "Cache hits by stage and tier (memory or store)",
			},
			[]string{"stage", "tier"},
		)

		CacheMisses = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_cache_misses_total",
				Help: "Cache misses that triggered a computation, by stage",
			},
			[]string{"stage"},
		)

		CacheCoalescedWaits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_cache_coalesced_waits_total",
				Help: "Resolve calls that waited on an in-flight computation for the same key",
			},
			[]string{"stage"},
		)

		CacheComputeTime = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callaudit_cache_compute_seconds",
				Help:    "Duration of cache-miss computations",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
			},
			[]string{"stage"},
		)

		ActiveComputations = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callaudit_active_computations",
				Help: "Number of stage computations currently in flight",
			},
		)

		StoreWritesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_store_writes_total",
				Help: "Artifact store writes by stage and status",
			},
			[]string{"stage", "status"},
		)

		StoreReadsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_store_reads_total",
				Help: "Artifact store reads by stage and outcome",
			},
			[]string{"stage", "outcome"},
		)

		StoreWriteErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_store_write_errors_total",
				Help: "Artifact store write failures by stage",
			},
			[]string{"stage"},
		)

		StageRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_stage_requests_total",
				Help: "Stage operations requested, by stage and status",
			},
			[]string{"stage", "status"},
		)

		StageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callaudit_stage_latency_seconds",
				Help:    "End-to-end latency of stage operations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~65s
			},
			[]string{"stage"},
		)

		StageErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_stage_errors_total",
				Help: "Stage operation failures by stage and error code",
			},
			[]string{"stage", "code"},
		)

		CollaboratorRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_collaborator_requests_total",
				Help: "External collaborator invocations by provider and status",
			},
			[]string{"provider", "status"},
		)

		CollaboratorLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callaudit_collaborator_latency_seconds",
				Help:    "Latency of external collaborator invocations",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 13), // 50ms to ~400s
			},
			[]string{"provider"},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callaudit_amqp_published_messages_total",
				Help: "Artifact notifications published to AMQP, by queue and status",
			},
			[]string{"queue", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callaudit_amqp_connection_status",
				Help: "AMQP connection status (1=connected, 0=disconnected)",
			},
		)

		registry.MustRegister(
			CacheHits,
			CacheMisses,
			CacheCoalescedWaits,
			CacheComputeTime,
			ActiveComputations,
			StoreWritesTotal,
			StoreReadsTotal,
			StoreWriteErrors,
			StageRequestsTotal,
			StageLatency,
			StageErrors,
			CollaboratorRequestsTotal,
			CollaboratorLatency,
			AMQPPublishedMessages,
			AMQPConnectionStatus,
		)

		initRuntimeMetrics()

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled && registry != nil {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	StartRuntimeCollector(logger)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// RecordCacheHit records a cache hit for a stage at the given tier
func RecordCacheHit(stage, tier string) {
	if metricsEnabled && CacheHits != nil {
		CacheHits.WithLabelValues(stage, tier).Inc()
	}
}

// RecordCacheMiss records a full cache miss for a stage
func RecordCacheMiss(stage string) {
	if metricsEnabled && CacheMisses != nil {
		CacheMisses.WithLabelValues(stage).Inc()
	}
}

// RecordCoalescedWait records a resolve call that joined an in-flight computation
func RecordCoalescedWait(stage string) {
	if metricsEnabled && CacheCoalescedWaits != nil {
		CacheCoalescedWaits.WithLabelValues(stage).Inc()
	}
}

// ObserveComputation tracks a cache-miss computation; the returned function
// stops the timer and decrements the in-flight gauge.
func ObserveComputation(stage string) func() {
	if !metricsEnabled || CacheComputeTime == nil {
		return func() {}
	}

	ActiveComputations.Inc()
	start := time.Now()
	return func() {
		ActiveComputations.Dec()
		CacheComputeTime.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// RecordStoreWrite records an artifact store write outcome
func RecordStoreWrite(stage string, err error) {
	if !metricsEnabled || StoreWritesTotal == nil {
		return
	}
	if err != nil {
		StoreWritesTotal.WithLabelValues(stage, "error").Inc()
		StoreWriteErrors.WithLabelValues(stage).Inc()
		return
	}
	StoreWritesTotal.WithLabelValues(stage, "ok").Inc()
}

// RecordStoreRead records an artifact store read outcome ("hit", "miss", "error")
func RecordStoreRead(stage, outcome string) {
	if metricsEnabled && StoreReadsTotal != nil {
		StoreReadsTotal.WithLabelValues(stage, outcome).Inc()
	}
}

// RecordStageRequest records a completed stage operation
func RecordStageRequest(stage, status string) {
	if metricsEnabled && StageRequestsTotal != nil {
		StageRequestsTotal.WithLabelValues(stage, status).Inc()
	}
}

// ObserveStageLatency records stage latency with a timer function
func ObserveStageLatency(stage string) func() {
	if !metricsEnabled || StageLatency == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// RecordStageError records a stage failure with its error code
func RecordStageError(stage, code string) {
	if metricsEnabled && StageErrors != nil {
		StageErrors.WithLabelValues(stage, code).Inc()
	}
}

// RecordCollaboratorRequest records an external collaborator invocation
func RecordCollaboratorRequest(provider, status string) {
	if metricsEnabled && CollaboratorRequestsTotal != nil {
		CollaboratorRequestsTotal.WithLabelValues(provider, status).Inc()
	}
}

// ObserveCollaboratorLatency records collaborator latency with a timer function
func ObserveCollaboratorLatency(provider string) func() {
	if !metricsEnabled || CollaboratorLatency == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		CollaboratorLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(queue, status string) {
	if metricsEnabled && AMQPPublishedMessages != nil {
		AMQPPublishedMessages.WithLabelValues(queue, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if metricsEnabled && AMQPConnectionStatus != nil {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}
