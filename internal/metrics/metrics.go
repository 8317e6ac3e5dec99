// Package metrics exposes the bootstrap server's observable counters:
// active sessions (spec §3.4, P6) and admission outcomes (spec §4.5), via
// prometheus/client_golang.
//
// The teacher never wires Prometheus itself; this is the rest-of-pack
// contribution other _examples repos make concrete (see DESIGN.md).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdmissionOutcome labels the admission-decision counter (spec §4.5's
// deny → cap → rate ordering).
type AdmissionOutcome string

const (
	AdmissionAllowed           AdmissionOutcome = "allowed"
	AdmissionDeniedBlacklisted AdmissionOutcome = "denied_blacklisted"
	AdmissionDeniedNotAllowed  AdmissionOutcome = "denied_not_whitelisted"
	AdmissionDeniedAtCapacity  AdmissionOutcome = "denied_at_capacity"
	AdmissionDeniedRateLimited AdmissionOutcome = "denied_rate_limited"
)

// Registry bundles the gauges and counters the scheduler and bootstrap state
// machine update as they run.
type Registry struct {
	ActiveSessions     prometheus.Gauge
	AdmissionTotal     *prometheus.CounterVec
	SessionsTotal      *prometheus.CounterVec
	BootstrapPartsSent prometheus.Counter
}

// NewRegistry constructs a Registry and registers its collectors with reg.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across parallel test binaries.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synnergy_bootstrap",
			Name:      "active_sessions",
			Help:      "Number of bootstrap sessions currently in flight.",
		}),
		AdmissionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synnergy_bootstrap",
			Name:      "admission_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"outcome"}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synnergy_bootstrap",
			Name:      "sessions_total",
			Help:      "Completed bootstrap sessions by terminal result.",
		}, []string{"result"}),
		BootstrapPartsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synnergy_bootstrap",
			Name:      "bootstrap_parts_sent_total",
			Help:      "BootstrapPart frames emitted across all sessions.",
		}),
	}
	reg.MustRegister(m.ActiveSessions, m.AdmissionTotal, m.SessionsTotal, m.BootstrapPartsSent)
	return m
}

// SessionStarted records a newly-spawned session.
func (m *Registry) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded records a session's terminal result (e.g. "finished",
// "fatal", "bootstrap_timeout") and decrements the active count.
func (m *Registry) SessionEnded(result string) {
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(result).Inc()
}

// Admission records one admission decision.
func (m *Registry) Admission(outcome AdmissionOutcome) {
	m.AdmissionTotal.WithLabelValues(string(outcome)).Inc()
}

// BootstrapPartSent records one emitted BootstrapPart frame.
func (m *Registry) BootstrapPartSent() {
	m.BootstrapPartsSent.Inc()
}
