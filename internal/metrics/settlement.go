// internal/metrics/settlement.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the settlement collectors. A nil *Recorder records nothing.
type Recorder struct {
	transitions    *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_transitions_total",
			Help: "Transactions recorded or settled, by gateway and resulting state.",
		}, []string{"gateway", "state"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_webhook_events_total",
			Help: "Inbound gateway webhooks by outcome.",
		}, []string{"gateway", "outcome"}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_reconciliation_required_total",
			Help: "Gateway-confirmed payments the ledger failed to record.",
		}, []string{"gateway"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_gateway_request_seconds",
			Help:    "Latency of outbound gateway calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"gateway", "operation"}),
	}
	if reg != nil {
		reg.MustRegister(r.transitions, r.webhookEvents, r.reconciliation, r.gatewayLatency)
	}
	return r
}

func (r *Recorder) Transition(gateway, state string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(gateway, state).Inc()
}

func (r *Recorder) WebhookEvent(gateway, outcome string) {
	if r == nil {
		return
	}
	r.webhookEvents.WithLabelValues(gateway, outcome).Inc()
}

func (r *Recorder) ReconciliationRequired(gateway string) {
	if r == nil {
		return
	}
	r.reconciliation.WithLabelValues(gateway).Inc()
}

func (r *Recorder) ObserveGateway(gateway, operation string, started time.Time) {
	if r == nil {
		return
	}
	r.gatewayLatency.WithLabelValues(gateway, operation).Observe(time.Since(started).Seconds())
}
