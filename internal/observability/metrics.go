// Package observability provides metrics and monitoring capabilities for lanemix.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/lanemix/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	AudioCore *metrics.AudioCoreMetrics
}

// NewMetrics creates a new instance of Metrics with its own registry. Go
// runtime and process collectors are registered alongside the engine metrics.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	audioCore, err := metrics.NewAudioCoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create audiocore metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		AudioCore: audioCore,
	}, nil
}

// Registry returns the registry every collector is registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
