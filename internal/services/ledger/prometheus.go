package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements MetricsCollector on top of a prometheus
// registry.
type PrometheusCollector struct {
	transactions *prometheus.CounterVec
	volume       *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	errors       *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
	verification *prometheus.CounterVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Completed ledger transactions by kind.",
		}, []string{"kind"}),
		volume: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transaction_volume_minor_units",
			Help: "Total completed transaction volume in minor units by kind.",
		}, []string{"kind"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reference_conflicts_total",
			Help: "Idempotency conflicts by operation.",
		}, []string{"op"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Ledger operation errors by operation and reason.",
		}, []string{"op", "reason"}),
		webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_webhook_events_total",
			Help: "Inbound processor webhook events by type and outcome.",
		}, []string{"event", "outcome"}),
		verification: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_verification_attempts_total",
			Help: "Payment verification attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (p *PrometheusCollector) RecordTransaction(kind string, amount int64) {
	p.transactions.WithLabelValues(kind).Inc()
	p.volume.WithLabelValues(kind).Add(float64(amount))
}

func (p *PrometheusCollector) RecordConflict(op string) {
	p.conflicts.WithLabelValues(op).Inc()
}

func (p *PrometheusCollector) RecordError(op, reason string) {
	p.errors.WithLabelValues(op, reason).Inc()
}

func (p *PrometheusCollector) RecordWebhookEvent(event, outcome string) {
	p.webhooks.WithLabelValues(event, outcome).Inc()
}

func (p *PrometheusCollector) RecordVerificationAttempt(outcome string) {
	p.verification.WithLabelValues(outcome).Inc()
}
