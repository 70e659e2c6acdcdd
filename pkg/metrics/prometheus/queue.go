package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iop-labs/profiled/pkg/metrics"
	"github.com/iop-labs/profiled/pkg/neighborhood"
)

// queueMetrics implements neighborhood.QueueMetrics.
type queueMetrics struct {
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	abandoned *prometheus.CounterVec
}

func newQueueMetrics() neighborhood.QueueMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	return &queueMetrics{
		completed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiled_neighborhood_actions_completed_total",
				Help: "Total number of replication actions dispatched successfully by type",
			},
			[]string{"action"},
		),
		failed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiled_neighborhood_actions_failed_total",
				Help: "Total number of replication action dispatch failures by type",
			},
			[]string{"action"},
		),
		abandoned: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiled_neighborhood_queues_abandoned_total",
				Help: "Total number of peer queues dropped after the failure budget was spent",
			},
			[]string{"direction"},
		),
	}
}

func (m *queueMetrics) RecordActionCompleted(actionType string) {
	m.completed.WithLabelValues(actionType).Inc()
}

func (m *queueMetrics) RecordActionFailed(actionType string) {
	m.failed.WithLabelValues(actionType).Inc()
}

func (m *queueMetrics) RecordQueueAbandoned(follower bool) {
	direction := "neighbor"
	if follower {
		direction = "follower"
	}
	m.abandoned.WithLabelValues(direction).Inc()
}
