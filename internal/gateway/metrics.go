package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"verifier/internal/rules"
)

// Metrics for the validation path. A nil *Metrics is a no-op.
type Metrics struct {
	Outcomes        *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	AuditPending    prometheus.Counter
	SnapshotVersion prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verifier_validation_outcomes_total",
			Help: "Validation results by domain and status",
		}, []string{"domain", "status"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verifier_validation_duration_seconds",
			Help:    "Time to evaluate a validation request, audit handoff included",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"domain"}),
		AuditPending: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verifier_validation_audit_pending_total",
			Help: "Validation results returned before their audit entry was durable",
		}),
		SnapshotVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "verifier_rule_snapshot_version",
			Help: "Version of the current rule snapshot",
		}),
	}
}

func (m *Metrics) observe(domain string, status rules.Status, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(domain, string(status)).Inc()
	m.Duration.WithLabelValues(domain).Observe(d.Seconds())
}

func (m *Metrics) incAuditPending() {
	if m != nil {
		m.AuditPending.Inc()
	}
}

// SnapshotPublished tracks the current snapshot version.
func (m *Metrics) SnapshotPublished(snap *rules.Snapshot) {
	if m != nil {
		m.SnapshotVersion.Set(float64(snap.Version()))
	}
}
