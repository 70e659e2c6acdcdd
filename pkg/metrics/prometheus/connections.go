// Package prometheus holds the Prometheus implementations of the metric
// interfaces in pkg/metrics. Importing this package (blank import in the
// start command) registers the constructors.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iop-labs/profiled/pkg/adapter"
	"github.com/iop-labs/profiled/pkg/metrics"
)

func init() {
	metrics.RegisterConnectionMetricsConstructor(newConnectionMetrics)
	metrics.RegisterRequestMetricsConstructor(newRequestMetrics)
	metrics.RegisterQueueMetricsConstructor(newQueueMetrics)
}

// connectionMetrics implements adapter.MetricsRecorder.
type connectionMetrics struct {
	accepted    *prometheus.CounterVec
	closed      *prometheus.CounterVec
	forceClosed *prometheus.CounterVec
	active      *prometheus.GaugeVec
}

func newConnectionMetrics() adapter.MetricsRecorder {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	return &connectionMetrics{
		accepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiled_connections_accepted_total",
				Help: "Total number of accepted connections by role",
			},
			[]string{"role"},
		),
		closed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiled_connections_closed_total",
				Help: "Total number of closed connections by role",
			},
			[]string{"role"},
		),
		forceClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiled_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown by role",
			},
			[]string{"role"},
		),
		active: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "profiled_connections_active",
				Help: "Current number of active connections by role",
			},
			[]string{"role"},
		),
	}
}

func (m *connectionMetrics) RecordConnectionAccepted(role string) {
	m.accepted.WithLabelValues(role).Inc()
}

func (m *connectionMetrics) RecordConnectionClosed(role string) {
	m.closed.WithLabelValues(role).Inc()
}

func (m *connectionMetrics) RecordConnectionForceClosed(role string) {
	m.forceClosed.WithLabelValues(role).Inc()
}

func (m *connectionMetrics) SetActiveConnections(role string, count int32) {
	m.active.WithLabelValues(role).Set(float64(count))
}
