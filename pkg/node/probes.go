package node

import (
	"context"

	"github.com/dd0wney/cluso-filestore/pkg/health"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// newProbes registers the node's checks. The node is ready once it has a
// view and its initial state; it is live while it holds a view, and
// degraded while it is alone.
func (n *Node) newProbes() *health.Checker {
	probes := health.NewChecker(0)
	membership := func() (bool, int) {
		v := n.tracker.View()
		return v.Size() > 0, v.Size()
	}

	probes.RegisterReadinessCheck("state", health.SignalCheck(n.ready, "waiting for initial state"))
	probes.RegisterReadinessCheck("cluster", health.MembershipCheck(membership, 1))
	if p, ok := n.store.(pinger); ok {
		probes.RegisterReadinessCheck("accounts", health.PingCheck(p.Ping))
	}
	probes.RegisterLivenessCheck("cluster", health.MembershipCheck(membership, 2))
	return probes
}
