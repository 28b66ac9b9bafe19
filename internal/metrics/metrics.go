// Package metrics exposes Prometheus instrumentation for the bootstrap
// sequence and the sync queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relaychat/appcore/internal/boot"
	"github.com/relaychat/appcore/pkg/types"
)

// Metrics holds the registered collectors. One instance per process.
type Metrics struct {
	registry *prometheus.Registry

	bootTransitions *prometheus.CounterVec
	bootErrors      *prometheus.CounterVec
	jobTransitions  *prometheus.CounterVec
	jobFailures     *prometheus.CounterVec
	jobsRunning     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bootTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appcore_boot_phase_transitions_total",
			Help: "Bootstrap phase transitions by source and destination phase.",
		}, []string{"from", "to"}),
		bootErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appcore_boot_errors_total",
			Help: "Bootstrap failures by recoverability.",
		}, []string{"recoverable"}),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appcore_sync_job_transitions_total",
			Help: "Sync job state transitions by job type and state.",
		}, []string{"job_type", "state"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appcore_sync_job_failures_total",
			Help: "Sync job failures by job type.",
		}, []string{"job_type"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "appcore_sync_jobs_running",
			Help: "Number of sync jobs currently running.",
		}),
	}

	m.registry.MustRegister(
		m.bootTransitions,
		m.bootErrors,
		m.jobTransitions,
		m.jobFailures,
		m.jobsRunning,
	)

	return m
}

// BootObserver returns a machine observer recording phase transitions.
func (m *Metrics) BootObserver() boot.Observer {
	return func(prev, next boot.State, e boot.Event) {
		if prev.Phase == next.Phase {
			return
		}
		m.bootTransitions.WithLabelValues(string(prev.Phase), string(next.Phase)).Inc()
		if next.Phase == types.PhaseError && next.Err != nil {
			recoverable := "false"
			if next.Err.Recoverable {
				recoverable = "true"
			}
			m.bootErrors.WithLabelValues(recoverable).Inc()
		}
	}
}

// JobObserver returns a queue observer recording job transitions.
func (m *Metrics) JobObserver() func(types.JobType, types.JobState) {
	return func(jobType types.JobType, state types.JobState) {
		m.jobTransitions.WithLabelValues(string(jobType), string(state)).Inc()
		switch state {
		case types.JobRunning:
			m.jobsRunning.Inc()
		case types.JobComplete:
			m.jobsRunning.Dec()
		case types.JobError:
			m.jobsRunning.Dec()
			m.jobFailures.WithLabelValues(string(jobType)).Inc()
		}
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
