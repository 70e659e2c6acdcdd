// Package metrics exposes the server's Prometheus metric constructors
// behind interface types, so instrumented packages never import the
// Prometheus client directly.
//
// The pattern is opt-in with zero overhead when disabled: InitRegistry is
// called once at startup when metrics are enabled; until then every
// constructor returns nil, and all instrumented call sites treat a nil
// recorder as "collect nothing".
//
// The concrete implementations live in pkg/metrics/prometheus and register
// themselves through the Register*Constructor hooks during package
// initialization; importing that package (blank import in the start
// command) completes the wiring. The indirection keeps this package free of
// an import cycle with the packages it instruments.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process-wide metric registry, pre-populated with
// the standard Go runtime and process collectors. Idempotent.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// ResetForTesting drops the registry so tests can re-initialize cleanly.
func ResetForTesting() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}
