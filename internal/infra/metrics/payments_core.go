package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		transactionsTotal,
		subscriptionsGrantedTotal,
		capturesTotal,
	)
}

var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transactions_total",
			Help: "Transaction status transitions (pending/completed/failed/cancelled/expired).",
		},
		[]string{"status"},
	)

	subscriptionsGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_granted_total",
			Help: "Entitlements created from completed transactions, by payment provider.",
		},
		[]string{"provider"},
	)

	capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_captures_total",
			Help: "Gateway capture attempts by provider and normalized result.",
		},
		[]string{"provider", "result"},
	)
)

func IncTransaction(status string) {
	transactionsTotal.WithLabelValues(norm(status)).Inc()
}

func IncSubscriptionGranted(provider string) {
	subscriptionsGrantedTotal.WithLabelValues(norm(provider)).Inc()
}

func IncCapture(provider, result string) {
	capturesTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}
