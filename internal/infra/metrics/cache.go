package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "activation_cache_requests_total",
		Help: "Activation code cache lookups by key kind, backend and result.",
	},
	[]string{"key", "backend", "result"}, // key="code"|"id", backend="memory"|"redis", result="hit"|"miss"
)

func IncCacheRequest(key, backend, result string) {
	cacheRequestsTotal.WithLabelValues(norm(key), norm(backend), norm(result)).Inc()
}
