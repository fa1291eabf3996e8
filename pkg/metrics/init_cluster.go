package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClusterMetrics() {
	r.ClusterMembersTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_cluster_members_total",
			Help: "Number of members in the current view, self included",
		},
	)

	r.ClusterIsLeader = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_cluster_is_leader",
			Help: "Whether this member is the leader of the current view (1=yes, 0=no)",
		},
	)

	r.ClusterViewChanges = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "filestore_cluster_view_changes_total",
			Help: "Total number of views accepted",
		},
	)

	r.ClusterViewID = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "filestore_cluster_view_id",
			Help: "Identifier of the most recently accepted view",
		},
	)
}
