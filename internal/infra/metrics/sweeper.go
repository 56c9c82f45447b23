package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sweepOutcomesTotal,
		sweepRunsTotal,
		subscriptionsExpiredTotal,
	)
}

var (
	// outcome: captured|failed|expired|skipped|error
	sweepOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sweep_outcomes_total",
			Help: "Per-transaction outcomes of recovery sweeps.",
		},
		[]string{"outcome"},
	)

	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sweep_runs_total",
			Help: "Recovery sweep runs by trigger (scheduled/manual) and result.",
		},
		[]string{"trigger", "result"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions flipped to expired by the scheduler.",
		},
	)
)

func IncSweepOutcome(outcome string) {
	sweepOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncSweepRun(trigger, result string) {
	sweepRunsTotal.WithLabelValues(norm(trigger), norm(result)).Inc()
}

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}
