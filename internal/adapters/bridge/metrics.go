package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eleven-am/loom/internal/domain"
)

type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_calls_total",
				Help:      "Total number of bridge calls by operation, path and error kind",
			},
			[]string{"operation", "path", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bridge_call_duration_seconds",
				Help:      "Time callers spent blocked in the bridge",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "path"},
		),
	}
	if registerer != nil {
		registerer.MustRegister(m.calls, m.duration)
	}
	return m
}

func (m *Metrics) observe(operation string, path Capability, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = domain.KindOf(err).String()
	}
	m.calls.WithLabelValues(operation, path.String(), result).Inc()
	m.duration.WithLabelValues(operation, path.String()).Observe(duration.Seconds())
}
