// Package metrics provides Prometheus metrics for the tablewire gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the gateway.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Upstream stream metrics
	upstreamMessages     *prometheus.CounterVec
	upstreamConnState    *prometheus.GaugeVec
	upstreamReconnects   *prometheus.CounterVec
	upstreamRequests     *prometheus.CounterVec
	upstreamRequestMs    *prometheus.HistogramVec
	snapshotConversions  *prometheus.CounterVec
	snapshotLastDuration *prometheus.GaugeVec
	providerGames        *prometheus.GaugeVec

	// Fan-out metrics
	eventsForwarded     *prometheus.CounterVec
	clientFramesDropped prometheus.Counter
	connectedClients    prometheus.Gauge
	activeSubscriptions prometheus.Gauge
	clientCommands      *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tablewire",
		subsystem:        "gateway",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	if !m.enabled {
		// Metrics still need to exist so recorders are safe; keep them off any registry.
		auto = promauto.With(nil)
	}
	labels := prometheus.Labels(m.customLabels)

	m.upstreamMessages = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("upstream_messages_total"),
		Help: "Upstream live-stream messages by provider and outcome (relevant, filtered, malformed, forwarded)",
	}, []string{"provider", "outcome"})

	m.upstreamConnState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("upstream_connection_state"),
		Help: "Live socket state per provider (0=disconnected, 1=connecting, 2=connected, 3=error)",
	}, []string{"provider"})

	m.upstreamReconnects = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("upstream_reconnect_attempts_total"),
		Help: "Reconnect attempts scheduled by the supervisor",
	}, []string{"provider"})

	m.upstreamRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("upstream_requests_total"),
		Help: "Upstream REST requests by provider and outcome (cache_hit, fetched, error)",
	}, []string{"provider", "outcome"})

	m.upstreamRequestMs = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("upstream_request_duration_milliseconds"),
		Help:    "Upstream REST latency including rate-limit wait",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"provider"})

	m.snapshotConversions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("snapshot_conversions_total"),
		Help: "Snapshot table conversions by provider and result (ok, error)",
	}, []string{"provider", "result"})

	m.snapshotLastDuration = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("snapshot_last_duration_milliseconds"),
		Help: "Duration of the last snapshot conversion",
	}, []string{"provider"})

	m.providerGames = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("provider_games"),
		Help: "Games currently known per provider",
	}, []string{"provider"})

	m.eventsForwarded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("events_forwarded_total"),
		Help: "game_update frames delivered to downstream clients",
	}, []string{"provider"})

	m.clientFramesDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("client_frames_dropped_total"),
		Help: "Frames dropped because a client's outbound queue was full or closed",
	})

	m.connectedClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("connected_clients"),
		Help: "Downstream clients currently connected",
	})

	m.activeSubscriptions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("active_subscriptions"),
		Help: "Client to (provider, game) subscriptions currently held",
	})

	m.clientCommands = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("client_commands_total"),
		Help: "Downstream commands by type and result",
	}, []string{"type", "result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("http_requests_total"),
		Help: "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("errors_by_component_total"),
		Help: "Errors by component and error type",
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "HTTP errors by endpoint, method and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name: m.name("memory_usage_bytes"),
		Help: "Current memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name: m.name("goroutines"),
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name:    m.name("gc_pause_milliseconds"),
		Help:    "Average GC pause time in milliseconds",
		Buckets: m.histogramBuckets,
	})
}

// Connection state gauge values.
const (
	StateDisconnected = 0
	StateConnecting   = 1
	StateConnected    = 2
	StateError        = 3
)

// RecordUpstreamMessage counts an upstream frame by outcome.
func RecordUpstreamMessage(provider, outcome string) {
	globalManager.upstreamMessages.WithLabelValues(provider, outcome).Inc()
}

// UpdateConnectionState sets the live socket state gauge.
func UpdateConnectionState(provider string, state int) {
	globalManager.upstreamConnState.WithLabelValues(provider).Set(float64(state))
}

// RecordReconnectAttempt counts a scheduled reconnect.
func RecordReconnectAttempt(provider string) {
	globalManager.upstreamReconnects.WithLabelValues(provider).Inc()
}

// RecordUpstreamRequest counts a REST request outcome.
func RecordUpstreamRequest(provider, outcome string) {
	globalManager.upstreamRequests.WithLabelValues(provider, outcome).Inc()
}

// RecordUpstreamRequestDuration observes REST latency in milliseconds.
func RecordUpstreamRequestDuration(provider string, durationMs float64) {
	globalManager.upstreamRequestMs.WithLabelValues(provider).Observe(durationMs)
}

// RecordSnapshotConversions adds converted/failed counts of a snapshot.
func RecordSnapshotConversions(provider string, ok, failed int) {
	globalManager.snapshotConversions.WithLabelValues(provider, "ok").Add(float64(ok))
	globalManager.snapshotConversions.WithLabelValues(provider, "error").Add(float64(failed))
}

// UpdateSnapshotDuration records how long the last snapshot conversion took.
func UpdateSnapshotDuration(provider string, durationMs float64) {
	globalManager.snapshotLastDuration.WithLabelValues(provider).Set(durationMs)
}

// UpdateProviderGames sets the known game count for a provider.
func UpdateProviderGames(provider string, count int) {
	globalManager.providerGames.WithLabelValues(provider).Set(float64(count))
}

// RecordEventForwarded counts a delivered game_update frame.
func RecordEventForwarded(provider string) {
	globalManager.eventsForwarded.WithLabelValues(provider).Inc()
}

// RecordClientFrameDropped counts a frame lost to backpressure.
func RecordClientFrameDropped() {
	globalManager.clientFramesDropped.Inc()
}

// UpdateConnectedClients sets the connected client gauge.
func UpdateConnectedClients(count int) {
	globalManager.connectedClients.Set(float64(count))
}

// UpdateActiveSubscriptions sets the subscription gauge.
func UpdateActiveSubscriptions(count int) {
	globalManager.activeSubscriptions.Set(float64(count))
}

// RecordClientCommand counts a downstream command.
func RecordClientCommand(cmdType, result string) {
	globalManager.clientCommands.WithLabelValues(cmdType, result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage updates memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom registry the gateway exposes on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
