package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRPCMetrics() {
	r.RPCRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_rpc_requests_total",
			Help: "Total number of RPC requests by operation and outcome code",
		},
		[]string{"operation", "code"},
	)

	r.RPCRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filestore_rpc_request_duration_seconds",
			Help:    "RPC request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		},
		[]string{"operation"},
	)

	r.RPCInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_rpc_requests_in_flight",
			Help: "Current number of RPC requests being processed",
		},
	)
}
