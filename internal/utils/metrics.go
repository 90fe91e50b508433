package utils

import (
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Tracks client-side request and reconciliation metrics. Every collector owns
// its registry so several engines (and tests) can live in one process.
type MetricsCollector struct {
	mu             sync.RWMutex
	requestCount   uint64
	errorCount     uint64
	rollbackCount  uint64
	discardedCount uint64

	// Completed operations by name; latencies live in opDuration
	operationCounts map[string]int

	systemStartTime time.Time

	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	rollbacks  *prometheus.CounterVec
	discarded  prometheus.Counter
	opDuration *prometheus.HistogramVec
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		operationCounts: make(map[string]int),
		systemStartTime: time.Now(),
		registry:        prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptpal",
			Name:      "api_requests_total",
			Help:      "Backend requests issued, by operation.",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptpal",
			Name:      "api_errors_total",
			Help:      "Backend requests that failed, by operation.",
		}, []string{"operation"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptpal",
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic mutations reverted after a failed round trip.",
		}, []string{"operation"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "promptpal",
			Name:      "stale_responses_discarded_total",
			Help:      "Responses dropped because a newer load superseded them.",
		}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptpal",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	mc.registry.MustRegister(mc.requests, mc.errors, mc.rollbacks, mc.discarded, mc.opDuration)
	return mc
}

// WriteText dumps every metric in the Prometheus text exposition format.
func (mc *MetricsCollector) WriteText(w io.Writer) error {
	families, err := mc.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func (mc *MetricsCollector) IncrementRequests(operation string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.requestCount++
	mc.requests.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) IncrementErrors(operation string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errorCount++
	mc.errors.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) IncrementRollbacks(operation string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.rollbackCount++
	mc.rollbacks.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) IncrementDiscarded() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.discardedCount++
	mc.discarded.Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.operationCounts[operationName]++
	mc.opDuration.WithLabelValues(operationName).Observe(duration.Seconds())
}

// MetricsSnapshot is a point-in-time copy of the plain counters.
type MetricsSnapshot struct {
	Requests   uint64
	Errors     uint64
	Rollbacks  uint64
	Discarded  uint64
	Uptime     time.Duration
	Operations map[string]int
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	ops := make(map[string]int, len(mc.operationCounts))
	for name, n := range mc.operationCounts {
		ops[name] = n
	}
	return MetricsSnapshot{
		Requests:   mc.requestCount,
		Errors:     mc.errorCount,
		Rollbacks:  mc.rollbackCount,
		Discarded:  mc.discardedCount,
		Uptime:     time.Since(mc.systemStartTime),
		Operations: ops,
	}
}
