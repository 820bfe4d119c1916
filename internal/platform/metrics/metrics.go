// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AccessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_access_checks_total",
		Help: "Patient data access checks by principal role and result.",
	}, []string{"role", "result"})

	LinkTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_link_transitions_total",
		Help: "Link status transitions by link kind and target status.",
	}, []string{"kind", "status"})

	LinkSweepExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_link_sweep_expired_total",
		Help: "Links moved to EXPIRED by the maintenance sweep.",
	}, []string{"tenant"})

	LinkSweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_link_sweep_failures_total",
		Help: "Maintenance sweeps that failed.",
	}, []string{"tenant"})

	LinkSweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carelink_link_sweep_duration_seconds",
		Help:    "Duration of one maintenance sweep of a tenant.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tenant"})

	AIDisclosures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_ai_disclosures_total",
		Help: "Patient contexts disclosed to the external model by anonymization level.",
	}, []string{"level"})

	PHIGuardRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_phi_guard_rejections_total",
		Help: "Contexts blocked because identifiers survived redaction.",
	})
)

// AccessResult labels an access check outcome.
func AccessResult(granted bool) string {
	if granted {
		return "granted"
	}
	return "denied"
}
