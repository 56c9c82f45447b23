package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		verifyRequests,
		verifyDuration,
		callbackOutcomes,
	)
}

var (
	// Count of verify calls grouped by result.
	// result: success|failure|unresolved
	verifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of payment verification calls by result.",
		},
		[]string{"result"},
	)

	verifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of payment verification in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"result"},
	)

	// Terminal states reached by callback polling sessions.
	callbackOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callback_outcomes_total",
			Help: "Terminal states of redirect-callback polling sessions.",
		},
		[]string{"state"},
	)
)

func ObserveVerify(result string, seconds float64) {
	verifyRequests.WithLabelValues(norm(result)).Inc()
	verifyDuration.WithLabelValues(norm(result)).Observe(seconds)
}

func IncCallbackOutcome(state string) {
	callbackOutcomes.WithLabelValues(norm(state)).Inc()
}
