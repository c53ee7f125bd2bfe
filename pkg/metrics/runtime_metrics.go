package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	// Go runtime metrics
	RuntimeMemoryAlloc prometheus.Gauge
	RuntimeHeapObjects prometheus.Gauge
	RuntimeGoroutines  prometheus.Gauge
	RuntimeGCPauses    prometheus.Counter

	collector *RuntimeCollector
)

// RuntimeCollector periodically samples Go runtime statistics
type RuntimeCollector struct {
	logger          *logrus.Logger
	collectInterval time.Duration
	enabled         bool
	mutex           sync.RWMutex
	stopChan        chan struct{}

	lastGCPauseTotal uint64
}

func initRuntimeMetrics() {
	RuntimeMemoryAlloc = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callaudit_runtime_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	RuntimeHeapObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callaudit_runtime_heap_objects",
			Help: "Number of allocated heap objects",
		},
	)

	RuntimeGoroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callaudit_runtime_goroutines",
			Help: "Number of goroutines",
		},
	)

	RuntimeGCPauses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callaudit_runtime_gc_pause_seconds_total",
			Help: "Cumulative garbage collection pause time",
		},
	)

	registry.MustRegister(
		RuntimeMemoryAlloc,
		RuntimeHeapObjects,
		RuntimeGoroutines,
		RuntimeGCPauses,
	)
}

// StartRuntimeCollector begins periodic runtime metric collection
func StartRuntimeCollector(logger *logrus.Logger) {
	if !metricsEnabled || registry == nil {
		return
	}

	collector = &RuntimeCollector{
		logger:          logger,
		collectInterval: 10 * time.Second,
		enabled:         true,
		stopChan:        make(chan struct{}),
	}

	go collector.start()
	logger.Info("Runtime metrics collector started")
}

// GetRuntimeCollector returns the active collector, or nil when metrics are off
func GetRuntimeCollector() *RuntimeCollector {
	return collector
}

func (c *RuntimeCollector) start() {
	ticker := time.NewTicker(c.collectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *RuntimeCollector) collect() {
	c.mutex.RLock()
	enabled := c.enabled
	c.mutex.RUnlock()

	if !enabled {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	RuntimeMemoryAlloc.Set(float64(m.Alloc))
	RuntimeHeapObjects.Set(float64(m.HeapObjects))
	RuntimeGoroutines.Set(float64(runtime.NumGoroutine()))

	c.mutex.Lock()
	if m.PauseTotalNs > c.lastGCPauseTotal {
		RuntimeGCPauses.Add(float64(m.PauseTotalNs-c.lastGCPauseTotal) / float64(time.Second))
		c.lastGCPauseTotal = m.PauseTotalNs
	}
	c.mutex.Unlock()
}

// Stop halts collection
func (c *RuntimeCollector) Stop() {
	close(c.stopChan)
}

// SetCollectInterval changes the sampling interval for the next start
func (c *RuntimeCollector) SetCollectInterval(interval time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.collectInterval = interval
}

// Enable resumes collection
func (c *RuntimeCollector) Enable() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.enabled = true
}

// Disable pauses collection without stopping the ticker
func (c *RuntimeCollector) Disable() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.enabled = false
}
