package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		webhookRejectedTotal,
	)
}

var (
	// result: completed|closed|noop|unknown|error
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Processed webhook events by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// reason: bad_signature|bad_json|method_not_allowed
	webhookRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_rejected_total",
			Help: "Webhook deliveries rejected before processing.",
		},
		[]string{"provider", "reason"},
	)
)

func IncWebhookEvent(provider, result string) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

func IncWebhookRejected(provider, reason string) {
	webhookRejectedTotal.WithLabelValues(norm(provider), norm(reason)).Inc()
}
