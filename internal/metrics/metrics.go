// Package metrics exports service metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mathchat"

// Config configures the metrics registry.
type Config struct {
	// Registry to use. A new one is created when nil.
	Registry *prometheus.Registry
	// LatencyBuckets for turn durations, in seconds.
	LatencyBuckets []float64
	// ProcessCollectors adds the Go runtime and process collectors.
	ProcessCollectors bool
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets:    []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		ProcessCollectors: true,
	}
}

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	turns        *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	phases       *prometheus.CounterVec
	dependencies *prometheus.CounterVec
	sessions     prometheus.Gauge
}

// New creates and registers the service collectors.
func New(cfg Config) *Metrics {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by answer stage and outcome",
		}, []string{"stage", "status"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time to answer a turn, from request to last chunk",
			Buckets:   cfg.LatencyBuckets,
		}, []string{"stage"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_total",
			Help:      "Analysis phases run",
		}, []string{"phase"}),
		dependencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependency_requests_total",
			Help:      "Calls to external dependencies by outcome",
		}, []string{"dependency", "status"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions held in memory",
		}),
	}

	registry.MustRegister(m.turns, m.turnDuration, m.phases, m.dependencies, m.sessions)
	if cfg.ProcessCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Turn records a finished turn.
func (m *Metrics) Turn(stage, status string, elapsed time.Duration) {
	if stage == "" {
		stage = "none"
	}
	m.turns.WithLabelValues(stage, status).Inc()
	m.turnDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Phase records an analysis phase.
func (m *Metrics) Phase(phase string) {
	m.phases.WithLabelValues(phase).Inc()
}

// Dependency records one call to an external dependency.
func (m *Metrics) Dependency(dependency, status string) {
	m.dependencies.WithLabelValues(dependency, status).Inc()
}

// SetSessions sets the live session gauge.
func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
