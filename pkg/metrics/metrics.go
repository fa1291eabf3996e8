package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.UpdateSystemMetrics()
		promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}).ServeHTTP(w, req)
	})
}

// RecordRPC records one RPC call with its outcome code
func (r *Registry) RecordRPC(operation, code string, duration time.Duration) {
	if r == nil {
		return
	}
	r.RPCRequestsTotal.WithLabelValues(operation, code).Inc()
	r.RPCRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TrackInFlight marks an RPC as started; call the returned func when it ends
func (r *Registry) TrackInFlight() func() {
	if r == nil {
		return func() {}
	}
	r.RPCInFlight.Inc()
	return r.RPCInFlight.Dec
}

// UpdateView records a newly accepted view
func (r *Registry) UpdateView(viewID uint64, members int, isLeader bool) {
	if r == nil {
		return
	}
	r.ClusterViewChanges.Inc()
	r.ClusterViewID.Set(float64(viewID))
	r.ClusterMembersTotal.Set(float64(members))
	if isLeader {
		r.ClusterIsLeader.Set(1)
	} else {
		r.ClusterIsLeader.Set(0)
	}
}

// RecordLockAcquire records the outcome of a lock acquisition
func (r *Registry) RecordLockAcquire(result string, wait time.Duration) {
	if r == nil {
		return
	}
	r.LockAcquisitionsTotal.WithLabelValues(result).Inc()
	r.LockWaitDuration.Observe(wait.Seconds())
}

// SetLockQueueDepth sets the total number of queued lock entries on the leader
func (r *Registry) SetLockQueueDepth(n int) {
	if r == nil {
		return
	}
	r.LockQueueDepth.Set(float64(n))
}

// RecordLockMessage counts a handled lock protocol message
func (r *Registry) RecordLockMessage(kind string) {
	if r == nil {
		return
	}
	r.LockMessagesTotal.WithLabelValues(kind).Inc()
}

// RecordWrite records a replicated write outcome
func (r *Registry) RecordWrite(operation, result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.ReplicationWritesTotal.WithLabelValues(operation, result).Inc()
	r.ReplicationWriteDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAck records an acknowledgement received by a coordinator
func (r *Registry) RecordAck(protocol, result string) {
	if r == nil {
		return
	}
	r.ReplicationAcksTotal.WithLabelValues(protocol, result).Inc()
}

// RecordRollback records a rollback on the coordinator or a peer
func (r *Registry) RecordRollback(protocol, side string) {
	if r == nil {
		return
	}
	r.ReplicationRollbacks.WithLabelValues(protocol, side).Inc()
}

// RecordTransaction records an account creation transaction outcome
func (r *Registry) RecordTransaction(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.TransactionsTotal.WithLabelValues(result).Inc()
	r.TransactionDuration.Observe(duration.Seconds())
}

// RecordStateTransfer records a snapshot sent or received
func (r *Registry) RecordStateTransfer(direction, result string, bytes int) {
	if r == nil {
		return
	}
	r.StateTransfersTotal.WithLabelValues(direction, result).Inc()
	if bytes > 0 {
		r.StateTransferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

// RecordGatewayRequest records the final outcome of a gateway call
func (r *Registry) RecordGatewayRequest(operation, result string) {
	if r == nil {
		return
	}
	r.GatewayRequestsTotal.WithLabelValues(operation, result).Inc()
}

// RecordGatewayAttempt records a single backend attempt
func (r *Registry) RecordGatewayAttempt(result string) {
	if r == nil {
		return
	}
	r.GatewayAttemptsTotal.WithLabelValues(result).Inc()
}

// SetGatewayBackends sets the number of active backends
func (r *Registry) SetGatewayBackends(n int) {
	if r == nil {
		return
	}
	r.GatewayBackends.Set(float64(n))
}

// SetStorage sets the stored file count and byte total
func (r *Registry) SetStorage(files int, bytes int64) {
	if r == nil {
		return
	}
	r.StoredFiles.Set(float64(files))
	r.StoredBytes.Set(float64(bytes))
}

// UpdateSystemMetrics refreshes uptime and goroutine gauges
func (r *Registry) UpdateSystemMetrics() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UptimeSeconds.Set(time.Since(r.startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
}
