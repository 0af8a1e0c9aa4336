// Package metrics exposes daemon counters on a dedicated Prometheus
// registry, served on the daemon API mux at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the daemon and drivers record into.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	clipsGenerated  prometheus.Counter
	clipsFailed     prometheus.Counter
	clipRetries     prometheus.Counter
	vendorRetries   *prometheus.CounterVec
	activeJobs      prometheus.Gauge
	agentIterations prometheus.Histogram
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adforge_jobs_total",
			Help: "Jobs finished, labeled by outcome and driver.",
		}, []string{"outcome", "driver"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adforge_step_duration_seconds",
			Help:    "Wall-clock duration of pipeline steps.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"step"}),
		clipsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adforge_clips_generated_total",
			Help: "Clips that completed generation.",
		}),
		clipsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adforge_clips_failed_total",
			Help: "Clips that exhausted their retry budget.",
		}),
		clipRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adforge_clip_retries_total",
			Help: "Clip regeneration attempts after a failed verification.",
		}),
		vendorRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adforge_vendor_retries_total",
			Help: "Transport-level retries against external services.",
		}, []string{"service"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adforge_active_jobs",
			Help: "Jobs currently being driven.",
		}),
		agentIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adforge_agent_iterations",
			Help:    "Tool-dispatch iterations used per agent-driven job.",
			Buckets: []float64{2, 4, 8, 12, 16, 20, 24},
		}),
	}
	registry.MustRegister(
		m.jobsTotal,
		m.stepDuration,
		m.clipsGenerated,
		m.clipsFailed,
		m.clipRetries,
		m.vendorRetries,
		m.activeJobs,
		m.agentIterations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobFinished records a terminal job outcome.
func (m *Metrics) JobFinished(outcome, driver string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome, driver).Inc()
}

// ObserveStep records how long one pipeline step took.
func (m *Metrics) ObserveStep(step string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ClipGenerated counts a successfully generated clip.
func (m *Metrics) ClipGenerated() {
	if m == nil {
		return
	}
	m.clipsGenerated.Inc()
}

// ClipFailed counts a clip that exhausted its retries.
func (m *Metrics) ClipFailed() {
	if m == nil {
		return
	}
	m.clipsFailed.Inc()
}

// ClipRetried counts a regeneration attempt.
func (m *Metrics) ClipRetried() {
	if m == nil {
		return
	}
	m.clipRetries.Inc()
}

// VendorRetry counts one transport retry against the named service.
func (m *Metrics) VendorRetry(service string) {
	if m == nil {
		return
	}
	m.vendorRetries.WithLabelValues(service).Inc()
}

// JobStarted and JobStopped track the active-jobs gauge.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

func (m *Metrics) JobStopped() {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
}

// AgentIterationsUsed records the iteration count of one agent run.
func (m *Metrics) AgentIterationsUsed(n int) {
	if m == nil {
		return
	}
	m.agentIterations.Observe(float64(n))
}
