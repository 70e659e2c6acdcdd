package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	iopadapter "github.com/iop-labs/profiled/pkg/adapter/iop"
	"github.com/iop-labs/profiled/pkg/metrics"
)

// requestMetrics implements the role adapters' RequestMetrics.
type requestMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newRequestMetrics() iopadapter.RequestMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	return &requestMetrics{
		total: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiled_requests_total",
				Help: "Total number of conversation requests by role, request type and status",
			},
			[]string{"role", "request", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "profiled_request_duration_seconds",
				Help: "Duration of conversation request handling in seconds",
				Buckets: []float64{
					0.001, // signature checks, state errors
					0.005,
					0.01,
					0.05, // typical store round-trip
					0.1,
					0.5,
					1, // regex budget ceiling
					5,
				},
			},
			[]string{"role", "request"},
		),
	}
}

func (m *requestMetrics) ObserveRequest(role, request, status string, duration time.Duration) {
	m.total.WithLabelValues(role, request, status).Inc()
	m.duration.WithLabelValues(role, request).Observe(duration.Seconds())
}
