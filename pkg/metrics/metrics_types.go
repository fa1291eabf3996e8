package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for a filestore process (backend node or gateway).
// Every Record*/Set* helper is safe to call on a nil *Registry.
type Registry struct {
	// RPC surface
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec
	RPCInFlight        prometheus.Gauge

	// Cluster membership
	ClusterMembersTotal prometheus.Gauge
	ClusterIsLeader     prometheus.Gauge
	ClusterViewChanges  prometheus.Counter
	ClusterViewID       prometheus.Gauge

	// Distributed locks
	LockAcquisitionsTotal *prometheus.CounterVec
	LockWaitDuration      prometheus.Histogram
	LockQueueDepth        prometheus.Gauge
	LockMessagesTotal     *prometheus.CounterVec

	// Replication (quorum writes and full-ack transactions)
	ReplicationWritesTotal   *prometheus.CounterVec
	ReplicationWriteDuration *prometheus.HistogramVec
	ReplicationAcksTotal     *prometheus.CounterVec
	ReplicationRollbacks     *prometheus.CounterVec
	TransactionsTotal        *prometheus.CounterVec
	TransactionDuration      prometheus.Histogram

	// State transfer
	StateTransfersTotal *prometheus.CounterVec
	StateTransferBytes  *prometheus.CounterVec

	// Gateway dispatch
	GatewayRequestsTotal *prometheus.CounterVec
	GatewayAttemptsTotal *prometheus.CounterVec
	GatewayBackends      prometheus.Gauge

	// Storage
	StoredFiles prometheus.Gauge
	StoredBytes prometheus.Gauge

	// System
	UptimeSeconds prometheus.Gauge
	GoRoutines    prometheus.Gauge

	startTime time.Time
	registry  *prometheus.Registry
	mu        sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	r.initRPCMetrics()
	r.initClusterMetrics()
	r.initLockMetrics()
	r.initReplicationMetrics()
	r.initGatewayMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
