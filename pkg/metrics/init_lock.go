package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initLockMetrics() {
	r.LockAcquisitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_lock_acquisitions_total",
			Help: "Total number of distributed lock acquisitions",
		},
		[]string{"result"}, // granted, timeout, error
	)

	r.LockWaitDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filestore_lock_wait_duration_seconds",
			Help:    "Time spent waiting for a distributed lock",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	r.LockQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_lock_queue_depth",
			Help: "Entries across all lock queues held by the leader",
		},
	)

	r.LockMessagesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_lock_messages_total",
			Help: "Lock protocol messages handled",
		},
		[]string{"kind"},
	)
}
