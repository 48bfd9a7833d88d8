package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cleanupRunsTotal) }

var cleanupRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cleanup_runs_total",
		Help: "Scheduled cleanup ticks, labeled by status.",
	},
	[]string{"status"}, // ok|error|skipped
)

func IncCleanupRun(status string) {
	cleanupRunsTotal.WithLabelValues(norm(status)).Inc()
}
