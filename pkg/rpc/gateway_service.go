package rpc

import (
	"context"

	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/gateway"
)

// GatewayService serves a gateway dispatcher over the RPC surface.
type GatewayService struct {
	*gateway.Dispatcher
	Tracker *cluster.Tracker
}

var _ Service = GatewayService{}

// Health lists the backends the gateway would route to. The status is
// "degraded" while there are none.
func (s GatewayService) Health(ctx context.Context) Health {
	backends := s.Backends()
	members := make([]string, 0, len(backends))
	for _, m := range backends {
		members = append(members, m.ID)
	}
	status := "ok"
	if len(backends) == 0 {
		status = "degraded"
	}
	return Health{
		Status:  status,
		ID:      s.Tracker.Self().ID,
		Role:    "gateway",
		ViewID:  s.Tracker.View().ID,
		Members: members,
	}
}
