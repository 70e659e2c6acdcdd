package metrics

import (
	"github.com/iop-labs/profiled/pkg/adapter"
	iopadapter "github.com/iop-labs/profiled/pkg/adapter/iop"
	"github.com/iop-labs/profiled/pkg/neighborhood"
)

// Constructors injected by pkg/metrics/prometheus during its package
// initialization.
var (
	newConnectionMetrics func() adapter.MetricsRecorder
	newRequestMetrics    func() iopadapter.RequestMetrics
	newQueueMetrics      func() neighborhood.QueueMetrics
)

// NewConnectionMetrics returns the connection-lifecycle recorder shared by
// the role adapters, or nil when metrics are disabled.
func NewConnectionMetrics() adapter.MetricsRecorder {
	if !IsEnabled() || newConnectionMetrics == nil {
		return nil
	}
	return newConnectionMetrics()
}

// NewRequestMetrics returns the per-request recorder of the protocol
// roles, or nil when metrics are disabled.
func NewRequestMetrics() iopadapter.RequestMetrics {
	if !IsEnabled() || newRequestMetrics == nil {
		return nil
	}
	return newRequestMetrics()
}

// NewQueueMetrics returns the action-queue recorder, or nil when metrics
// are disabled.
func NewQueueMetrics() neighborhood.QueueMetrics {
	if !IsEnabled() || newQueueMetrics == nil {
		return nil
	}
	return newQueueMetrics()
}

// RegisterConnectionMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterConnectionMetricsConstructor(constructor func() adapter.MetricsRecorder) {
	newConnectionMetrics = constructor
}

// RegisterRequestMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterRequestMetricsConstructor(constructor func() iopadapter.RequestMetrics) {
	newRequestMetrics = constructor
}

// RegisterQueueMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterQueueMetricsConstructor(constructor func() neighborhood.QueueMetrics) {
	newQueueMetrics = constructor
}
