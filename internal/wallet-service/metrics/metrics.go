// Package metrics reúne os coletores Prometheus da wallet
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors agrupa as métricas de operações da wallet.
// Um *Collectors nil é válido e não registra nada.
type Collectors struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	betOutcomes *prometheus.CounterVec
	published   *prometheus.CounterVec
}

// New cria e registra os coletores no registerer informado
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_operations_total",
				Help: "Wallet operations by operation and result",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_operation_duration_seconds",
				Help:    "Wallet operation latency, lock wait included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		betOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_bet_outcomes_total",
				Help: "Committed bets by outcome",
			},
			[]string{"outcome"},
		),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_published_events_total",
				Help: "Post-commit publications by sink and result",
			},
			[]string{"sink", "result"},
		),
	}
	reg.MustRegister(c.operations, c.duration, c.betOutcomes, c.published)
	return c
}

func (c *Collectors) ObserveOperation(op, result string, took time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(op, result).Inc()
	c.duration.WithLabelValues(op).Observe(took.Seconds())
}

func (c *Collectors) BetResolved(won bool) {
	if c == nil {
		return
	}
	outcome := "lose"
	if won {
		outcome = "win"
	}
	c.betOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collectors) Published(sink string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.published.WithLabelValues(sink, result).Inc()
}

// AuditCollectors contam o resultado da verificação de cadeia no audit worker
type AuditCollectors struct {
	records *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

func NewAudit(reg prometheus.Registerer) *AuditCollectors {
	c := &AuditCollectors{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_audit_records_total",
				Help: "Audited transaction events by verdict",
			},
			[]string{"result"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_audit_errors_total",
				Help: "Audit worker errors by stage",
			},
			[]string{"stage"},
		),
	}
	reg.MustRegister(c.records, c.errors)
	return c
}

func (c *AuditCollectors) Record(result string) {
	if c == nil {
		return
	}
	c.records.WithLabelValues(result).Inc()
}

func (c *AuditCollectors) Error(stage string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(stage).Inc()
}
