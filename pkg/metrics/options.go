// Package metrics provides Prometheus metrics for the tablewire gateway.
package metrics

import (
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager before its collectors are built.
type Option func(*Manager)

// WithNamespace replaces the "tablewire" namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem replaces the "gateway" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithMetricPrefix is prepended to every metric name, joined by "_".
func WithMetricPrefix(prefix string) Option {
	return func(m *Manager) {
		if prefix != "" {
			m.metricPrefix = prefix
		}
	}
}

// WithHistogramBuckets sets the HTTP latency buckets, in seconds. Upstream
// latency keeps its own millisecond buckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithCustomLabels attaches constant labels, such as the deployment, to every
// collector.
func WithCustomLabels(labels map[string]string) Option {
	return func(m *Manager) {
		maps.Copy(m.customLabels, labels)
	}
}

// WithGaugeRefresh sets how often the process gauges (memory, goroutines,
// connected clients) are resampled.
func WithGaugeRefresh(every time.Duration) Option {
	return func(m *Manager) {
		if every > 0 {
			m.refreshInterval = every
		}
	}
}

// WithMetricsEnabled(false) keeps recorders usable but registers nothing.
func WithMetricsEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled = enabled
	}
}

// WithPrometheusRegistry registers collectors on registry instead of the
// process default.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// GaugeRefresh reports how often process gauges should be resampled.
func (m *Manager) GaugeRefresh() time.Duration { return m.refreshInterval }

// GaugeRefresh is the resample interval of the global manager.
func GaugeRefresh() time.Duration { return globalManager.GaugeRefresh() }
