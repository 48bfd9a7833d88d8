package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(codesCreatedTotal, codeVerificationsTotal, codesCleanedTotal, activationOpDuration)
}

var (
	codesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "activation_codes_created_total",
			Help: "Activation codes successfully created.",
		},
	)

	codeVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_code_verifications_total",
			Help: "Verify-and-consume attempts by outcome.",
		},
		[]string{"result"}, // 'consumed', 'already_used', 'expired', 'not_found', 'invalid', 'error'
	)

	codesCleanedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_codes_cleaned_total",
			Help: "Unused activation codes removed by cleanup.",
		},
		[]string{"trigger"}, // 'create', 'manual', 'worker'
	)

	activationOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "activation_op_duration_ms",
			Help:    "Lifecycle operation latency in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"op"},
	)
)

func IncCodesCreated(n int) {
	codesCreatedTotal.Add(float64(n))
}

func IncVerification(result string) {
	codeVerificationsTotal.WithLabelValues(norm(result)).Inc()
}

func AddCodesCleaned(trigger string, n int64) {
	codesCleanedTotal.WithLabelValues(norm(trigger)).Add(float64(n))
}

func ObserveOp(op string, ms float64) {
	activationOpDuration.WithLabelValues(norm(op)).Observe(ms)
}
