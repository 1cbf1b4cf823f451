package process

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible instrumentation for orchestrator
// execution. All series are namespaced "flowkernel_".
//
//  1. supersteps_total (counter): completed supersteps. Labels: process_id.
//  2. queue_depth (gauge): pending messages at the last drain. Labels:
//     process_id.
//  3. dispatch_latency_ms (histogram): per-message dispatch duration.
//     Labels: process_id, step_id, status.
//  4. group_releases_total (counter): edge-group join releases. Labels:
//     process_id, group_id.
//
// Thread-safe: every method may be called concurrently from superstep
// dispatch goroutines.
type Metrics struct {
	supersteps      *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	dispatchLatency *prometheus.HistogramVec
	groupReleases   *prometheus.CounterVec

	registry prometheus.Registerer
	mu       sync.RWMutex
	enabled  bool
}

// NewMetrics creates and registers orchestrator metrics against registry.
// Pass prometheus.DefaultRegisterer to use the global registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		supersteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowkernel",
			Name:      "supersteps_total",
			Help:      "Total completed supersteps.",
		}, []string{"process_id"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowkernel",
			Name:      "queue_depth",
			Help:      "Pending messages observed at the last drain.",
		}, []string{"process_id"}),
		dispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowkernel",
			Name:      "dispatch_latency_ms",
			Help:      "Per-message dispatch duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"process_id", "step_id", "status"}),
		groupReleases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowkernel",
			Name:      "group_releases_total",
			Help:      "Edge-group join releases.",
		}, []string{"process_id", "group_id"}),
		registry: registry,
		enabled:  true,
	}
}

func (m *Metrics) recordSuperstep(processID string) {
	if m == nil || !m.enabled {
		return
	}
	m.supersteps.WithLabelValues(processID).Inc()
}

func (m *Metrics) setQueueDepth(processID string, depth int) {
	if m == nil || !m.enabled {
		return
	}
	m.queueDepth.WithLabelValues(processID).Set(float64(depth))
}

func (m *Metrics) recordDispatch(processID, stepID, status string, d time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.dispatchLatency.WithLabelValues(processID, stepID, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) recordGroupRelease(processID, groupID string) {
	if m == nil || !m.enabled {
		return
	}
	m.groupReleases.WithLabelValues(processID, groupID).Inc()
}
