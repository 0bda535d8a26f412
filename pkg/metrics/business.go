package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var donationsInitiated = &Metric{
	ID:          "donInit",
	Name:        "donations_initiated_total",
	Description: "Donation intents handled by the orchestrator, by kind and outcome.",
	Type:        CounterVec,
	Args:        []string{"kind", "outcome"},
}

var webhookEvents = &Metric{
	ID:          "whEvents",
	Name:        "webhook_events_total",
	Description: "Gateway events reconciled, by event kind and reconciliation outcome.",
	Type:        CounterVec,
	Args:        []string{"event", "outcome"},
}

var sweptRecords = &Metric{
	ID:          "swept",
	Name:        "sweeper_transitions_total",
	Description: "Stale pending records moved out of pending by the expiry sweep.",
	Type:        CounterVec,
	Args:        []string{"record"},
}

var notificationsDispatched = &Metric{
	ID:          "notif",
	Name:        "notifications_dispatched_total",
	Description: "Outbox notifications delivered or abandoned by the dispatcher.",
	Type:        CounterVec,
	Args:        []string{"outcome"},
}

var gatewayLatency = &Metric{
	ID:          "gwDur",
	Name:        "gateway_call_dur_ms",
	Description: "Payment gateway call latency in milliseconds.",
	Type:        HistogramVec,
	Args:        []string{"op", "outcome"},
	Buckets:     GatewayBuckets,
}

// Business groups the domain counters. A nil *Business is a valid no-op so
// services can be constructed without metrics in tests.
type Business struct {
	initiated  *prometheus.CounterVec
	webhooks   *prometheus.CounterVec
	swept      *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	gateway    *prometheus.HistogramVec
}

func NewBusiness(reg prometheus.Registerer) *Business {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const subsystem = "donations"
	return &Business{
		initiated:  register(reg, NewMetric(donationsInitiated, subsystem), nil).(*prometheus.CounterVec),
		webhooks:   register(reg, NewMetric(webhookEvents, subsystem), nil).(*prometheus.CounterVec),
		swept:      register(reg, NewMetric(sweptRecords, subsystem), nil).(*prometheus.CounterVec),
		dispatched: register(reg, NewMetric(notificationsDispatched, subsystem), nil).(*prometheus.CounterVec),
		gateway:    register(reg, NewMetric(gatewayLatency, subsystem), nil).(*prometheus.HistogramVec),
	}
}

func (b *Business) DonationInitiated(kind, outcome string) {
	if b == nil {
		return
	}
	b.initiated.WithLabelValues(kind, outcome).Inc()
}

func (b *Business) WebhookReconciled(event, outcome string) {
	if b == nil {
		return
	}
	b.webhooks.WithLabelValues(event, outcome).Inc()
}

func (b *Business) Swept(record string, n int) {
	if b == nil || n <= 0 {
		return
	}
	b.swept.WithLabelValues(record).Add(float64(n))
}

func (b *Business) Dispatched(outcome string) {
	if b == nil {
		return
	}
	b.dispatched.WithLabelValues(outcome).Inc()
}

func (b *Business) GatewayCall(op, outcome string, ms float64) {
	if b == nil {
		return
	}
	b.gateway.WithLabelValues(op, outcome).Observe(ms)
}

func provideBusiness() *Business { return NewBusiness(prometheus.DefaultRegisterer) }

var Module = fx.Options(
	fx.Provide(provideBusiness),
)
