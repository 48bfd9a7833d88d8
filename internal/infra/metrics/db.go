package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, dbFallbackTotal) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_stats",
		Help: "Current state of the database connection pool.",
	},
	[]string{"driver", "state"}, // state: 'total', 'idle', 'in_use'
)

var dbFallbackTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "db_fallback_total",
		Help: "Operations served by the secondary store after a primary storage failure.",
	},
	[]string{"op"},
)

func SetDBPoolStats(driver string, total, idle, inUse int32) {
	d := norm(driver)
	dbPoolStats.WithLabelValues(d, "total").Set(float64(total))
	dbPoolStats.WithLabelValues(d, "idle").Set(float64(idle))
	dbPoolStats.WithLabelValues(d, "in_use").Set(float64(inUse))
}

func IncDBFallback(op string) {
	dbFallbackTotal.WithLabelValues(norm(op)).Inc()
}
