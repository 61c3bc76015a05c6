package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects engine metrics, all namespaced "minigraph_":
//
//   - runs_total{status}: runs that reached a terminal status
//   - active_runs: runs currently executing
//   - graphs_registered: graphs created since startup
//   - steps_total{node_id}: completed steps
//   - step_latency_ms{node_id,status}: tool execution time (status: success, error)
//   - condition_errors_total{node_id}: edge conditions that failed to evaluate
//   - step_limit_hits_total: runs stopped by the step ceiling
//
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	runs            *prometheus.CounterVec
	activeRuns      prometheus.Gauge
	graphs          prometheus.Gauge
	steps           *prometheus.CounterVec
	stepLatency     *prometheus.HistogramVec
	conditionErrors *prometheus.CounterVec
	stepLimitHits   prometheus.Counter
}

// NewPrometheusMetrics creates the collectors and registers them with
// registry (prometheus.DefaultRegisterer when nil).
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minigraph",
			Name:      "runs_total",
			Help:      "Runs that reached a terminal status",
		}, []string{"status"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "minigraph",
			Name:      "active_runs",
			Help:      "Runs currently executing",
		}),
		graphs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "minigraph",
			Name:      "graphs_registered",
			Help:      "Graphs registered with the engine",
		}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minigraph",
			Name:      "steps_total",
			Help:      "Completed node executions",
		}, []string{"node_id"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "minigraph",
			Name:      "step_latency_ms",
			Help:      "Tool execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}, // 1ms to 10s
		}, []string{"node_id", "status"}),
		conditionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minigraph",
			Name:      "condition_errors_total",
			Help:      "Edge conditions that failed to evaluate",
		}, []string{"node_id"}),
		stepLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minigraph",
			Name:      "step_limit_hits_total",
			Help:      "Runs stopped by the step ceiling",
		}),
	}
}

func (pm *PrometheusMetrics) graphRegistered() {
	if pm == nil {
		return
	}
	pm.graphs.Inc()
}

func (pm *PrometheusMetrics) runStarted() {
	if pm == nil {
		return
	}
	pm.activeRuns.Inc()
}

func (pm *PrometheusMetrics) runFinished(status Status) {
	if pm == nil {
		return
	}
	pm.activeRuns.Dec()
	pm.runs.WithLabelValues(string(status)).Inc()
}

func (pm *PrometheusMetrics) recordStep(nodeID string, latency time.Duration, err error) {
	if pm == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	} else {
		pm.steps.WithLabelValues(nodeID).Inc()
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

func (pm *PrometheusMetrics) conditionError(nodeID string) {
	if pm == nil {
		return
	}
	pm.conditionErrors.WithLabelValues(nodeID).Inc()
}

func (pm *PrometheusMetrics) stepLimitHit() {
	if pm == nil {
		return
	}
	pm.stepLimitHits.Inc()
}
