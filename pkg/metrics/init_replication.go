package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicationMetrics() {
	r.ReplicationWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_replication_writes_total",
			Help: "Replicated write operations by operation and result",
		},
		[]string{"operation", "result"}, // upload|edit|delete, committed|rolled_back|local_error|lock_error
	)

	r.ReplicationWriteDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filestore_replication_write_duration_seconds",
			Help:    "Duration of replicated writes, lock wait included",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		},
		[]string{"operation"},
	)

	r.ReplicationAcksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_replication_acks_total",
			Help: "Acknowledgements received by coordinators",
		},
		[]string{"protocol", "result"}, // quorum|full_ack, positive|negative|late
	)

	r.ReplicationRollbacks = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_replication_rollbacks_total",
			Help: "Rollbacks applied, by side",
		},
		[]string{"protocol", "side"}, // quorum|full_ack, coordinator|peer
	)

	r.TransactionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_transactions_total",
			Help: "Account creation transactions by result",
		},
		[]string{"result"}, // committed, duplicate, timeout, local_error
	)

	r.TransactionDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filestore_transaction_duration_seconds",
			Help:    "Duration of account creation transactions",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	r.StateTransfersTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_state_transfers_total",
			Help: "State transfers by direction and result",
		},
		[]string{"direction", "result"}, // sent|received, ok|error
	)

	r.StateTransferBytes = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "filestore_state_transfer_bytes_total",
			Help: "Compressed snapshot bytes moved by state transfer",
		},
		[]string{"direction"},
	)
}
