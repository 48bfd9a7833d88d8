package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminAuthTotal) }

var adminAuthTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_auth_total",
		Help: "Tracks attempts to reach admin endpoints.",
	},
	[]string{"method", "status"}, // method: open|api_key|jwt|token; status: ok|rejected
)

func IncAdminAuth(method, status string) {
	adminAuthTotal.WithLabelValues(norm(method), norm(status)).Inc()
}
