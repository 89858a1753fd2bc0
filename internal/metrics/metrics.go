// Package metrics exposes Prometheus instrumentation for saves and scheduler sweeps.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cms"

// Save outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics holds all counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SavesTotal          *prometheus.CounterVec
	SaveRetriesTotal    *prometheus.CounterVec
	RedirectsCreated    *prometheus.CounterVec
	SweepsTotal         *prometheus.CounterVec
	SweepDuration       *prometheus.HistogramVec
	VersionsActivated   *prometheus.CounterVec
	SchedulerErrorTotal *prometheus.CounterVec
}

// New registers all metrics with reg (the default registerer when nil)
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "articles",
			Name:      "saves_total",
			Help:      "Article save commands by outcome",
		}, []string{"tenant", "outcome"}),
		SaveRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "articles",
			Name:      "save_retries_total",
			Help:      "Save attempts retried after an optimistic concurrency conflict",
		}, []string{"tenant"}),
		RedirectsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "articles",
			Name:      "redirects_created_total",
			Help:      "Redirect rows created by title cascades",
		}, []string{"tenant"}),
		SweepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Scheduler sweeps per tenant",
		}, []string{"tenant"}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a tenant sweep",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tenant"}),
		VersionsActivated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "versions_activated_total",
			Help:      "Article versions whose activation was reconciled",
		}, []string{"tenant"}),
		SchedulerErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "errors_total",
			Help:      "Articles or tenants skipped because of an error",
		}, []string{"tenant"}),
	}
}

func (m *Metrics) SaveCompleted(tenant, outcome string) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(tenant, outcome).Inc()
}

func (m *Metrics) SaveRetried(tenant string) {
	if m == nil {
		return
	}
	m.SaveRetriesTotal.WithLabelValues(tenant).Inc()
}

func (m *Metrics) RedirectCreated(tenant string) {
	if m == nil {
		return
	}
	m.RedirectsCreated.WithLabelValues(tenant).Inc()
}

func (m *Metrics) SweepCompleted(tenant string, d time.Duration, activated int) {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues(tenant).Inc()
	m.SweepDuration.WithLabelValues(tenant).Observe(d.Seconds())
	m.VersionsActivated.WithLabelValues(tenant).Add(float64(activated))
}

func (m *Metrics) SchedulerError(tenant string) {
	if m == nil {
		return
	}
	m.SchedulerErrorTotal.WithLabelValues(tenant).Inc()
}
