package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the bridge and its engine.
type Metrics struct {
	config MetricsConfig

	// Entry point metrics
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	failures     *prometheus.CounterVec

	// Handle cache metrics
	cachedHandles *prometheus.GaugeVec

	// Instance metrics
	liveInstances prometheus.Gauge

	// Engine metrics
	decisions   *prometheus.CounterVec
	logEntries  *prometheus.CounterVec
	storeReload *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_calls_total",
				Help:      "Total number of bridge entry point calls",
			},
			[]string{"entry_point", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bridge_call_duration_seconds",
				Help:      "Duration of bridge entry point calls in seconds",
				Buckets:   buckets,
			},
			[]string{"entry_point"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_failures_total",
				Help:      "Total number of bridge failures by error class",
			},
			[]string{"entry_point", "class"},
		),

		cachedHandles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cached_handles",
				Help:      "Number of cached foreign handles by cache and kind",
			},
			[]string{"cache", "kind"},
		),

		liveInstances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_instances",
				Help:      "Current number of engine instances attached to foreign objects",
			},
		),

		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of authorization decisions",
			},
			[]string{"kind", "decision"},
		),
		logEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decision_log_entries_total",
				Help:      "Total number of decision log entries by sink and outcome",
			},
			[]string{"sink", "outcome"},
		),
		storeReload: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_store_reloads_total",
				Help:      "Total number of policy store reloads",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.calls,
		m.callDuration,
		m.failures,
		m.cachedHandles,
		m.liveInstances,
		m.decisions,
		m.logEntries,
		m.storeReload,
	)

	return m, nil
}

// NewNopMetrics returns a metrics instance that records nothing.
func NewNopMetrics() *Metrics {
	return &Metrics{}
}

// Entry Point Metrics

// RecordCall records a completed entry point call with its outcome.
func (m *Metrics) RecordCall(entryPoint, outcome string, duration time.Duration) {
	if m.calls == nil {
		return
	}
	m.calls.WithLabelValues(entryPoint, outcome).Inc()
	m.callDuration.WithLabelValues(entryPoint).Observe(duration.Seconds())
}

// RecordFailure records a failure by error class.
func (m *Metrics) RecordFailure(entryPoint, class string) {
	if m.failures == nil {
		return
	}
	m.failures.WithLabelValues(entryPoint, class).Inc()
}

// Cache Metrics

// SetCachedHandles sets the number of cached handles of one kind.
func (m *Metrics) SetCachedHandles(cache, kind string, count int) {
	if m.cachedHandles == nil {
		return
	}
	m.cachedHandles.WithLabelValues(cache, kind).Set(float64(count))
}

// Instance Metrics

// InstanceCreated increments the live instance gauge.
func (m *Metrics) InstanceCreated() {
	if m.liveInstances == nil {
		return
	}
	m.liveInstances.Inc()
}

// InstanceReleased decrements the live instance gauge.
func (m *Metrics) InstanceReleased() {
	if m.liveInstances == nil {
		return
	}
	m.liveInstances.Dec()
}

// Engine Metrics

// RecordDecision records one authorization decision.
func (m *Metrics) RecordDecision(kind string, allowed bool) {
	if m.decisions == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.decisions.WithLabelValues(kind, decision).Inc()
}

// RecordLogEntry records a decision log write.
func (m *Metrics) RecordLogEntry(sink, outcome string) {
	if m.logEntries == nil {
		return
	}
	m.logEntries.WithLabelValues(sink, outcome).Inc()
}

// RecordStoreReload records a policy store reload.
func (m *Metrics) RecordStoreReload(status string) {
	if m.storeReload == nil {
		return
	}
	m.storeReload.WithLabelValues(status).Inc()
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer(logger *Logger) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error(fmt.Sprintf("metrics server on %s stopped", m.config.ListenAddress))
		}
	}()

	return nil
}
