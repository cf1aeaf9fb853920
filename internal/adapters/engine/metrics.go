package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eleven-am/loom/internal/domain"
)

// Metrics holds the engine's collectors. They are registered on the
// registerer handed to NewMetrics rather than the process default.
type Metrics struct {
	transitions       *prometheus.CounterVec
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	discarded         prometheus.Counter
	nodes             *prometheus.GaugeVec
}

func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_state_transitions_total",
				Help:      "Total number of node state transitions by target state",
			},
			[]string{"state"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_executions_total",
				Help:      "Total number of node executions by result",
			},
			[]string{"factory", "result"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_execution_duration_seconds",
				Help:      "Duration of node executions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"factory"},
		),
		discarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_results_discarded_total",
				Help:      "Execution results dropped because the node was reset or aborted meanwhile",
			},
		),
		nodes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workflow_nodes",
				Help:      "Number of node containers per workflow",
			},
			[]string{"workflow"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(m.transitions, m.executions, m.executionDuration, m.discarded, m.nodes)
	}
	return m
}

func (m *Metrics) recordTransition(state domain.NodeState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) recordExecution(factory string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	if factory == "" {
		factory = "unknown"
	}
	m.executions.WithLabelValues(factory, result).Inc()
	m.executionDuration.WithLabelValues(factory).Observe(duration.Seconds())
}

func (m *Metrics) recordDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

func (m *Metrics) setNodeCount(workflow domain.NodeID, count int) {
	if m == nil {
		return
	}
	m.nodes.WithLabelValues(workflow.String()).Set(float64(count))
}
