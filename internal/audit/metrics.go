package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Metrics for the audit pipeline. A nil *Metrics is a no-op.
type Metrics struct {
	EntriesPersisted prometheus.Counter
	WriteFailures    prometheus.Counter
	RetriesTotal     *prometheus.CounterVec
	PendingEntries   prometheus.Gauge
	BreakerState     prometheus.Gauge
}

// NewMetrics creates and registers the audit metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EntriesPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verifier_audit_entries_persisted_total",
			Help: "Audit entries durably written to the store",
		}),
		WriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verifier_audit_write_failures_total",
			Help: "Audit entries deferred to the retry queue",
		}),
		RetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verifier_audit_retries_total",
			Help: "Retry attempts by result",
		}, []string{"result"}),
		PendingEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "verifier_audit_pending_entries",
			Help: "Audit entries waiting in the retry queue",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "verifier_audit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
	}
}

func (m *Metrics) incPersisted() {
	if m != nil {
		m.EntriesPersisted.Inc()
	}
}

func (m *Metrics) incWriteFailure() {
	if m != nil {
		m.WriteFailures.Inc()
	}
}

func (m *Metrics) observeRetry(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.RetriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) setPending(n int64) {
	if m != nil {
		m.PendingEntries.Set(float64(n))
	}
}

func (m *Metrics) setBreakerState(s gobreaker.State) {
	if m != nil {
		m.BreakerState.Set(float64(s))
	}
}
