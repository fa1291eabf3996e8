package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initGatewayMetrics() {
	r.GatewayRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_gateway_requests_total",
			Help: "Gateway requests by operation and result",
		},
		[]string{"operation", "result"}, // ok, error, no_backend, exhausted
	)

	r.GatewayAttemptsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_gateway_attempts_total",
			Help: "Individual backend attempts made by the gateway",
		},
		[]string{"result"}, // ok, unreachable, error
	)

	r.GatewayBackends = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_gateway_active_backends",
			Help: "Backends currently eligible for dispatch",
		},
	)
}
