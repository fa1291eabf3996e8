package cluster

import (
	"sync"

	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
)

// Change describes one accepted view.
type Change struct {
	Previous      group.View
	Current       group.View
	Joined        []group.Member
	Left          []group.Member
	Leader        group.Member
	LeaderChanged bool
	// First is set for the first view this node ever accepted.
	First bool
}

// Config configures a Tracker.
type Config struct {
	Self     group.Member
	Strategy LeaderStrategy
	Logger   logging.Logger
	Metrics  *metrics.Registry
}

// Tracker holds the current view and the leader derived from it.
//
// Concurrent Safety:
// 1. View state is guarded by an RWMutex; readers get copies
// 2. Listeners run after the lock is released, in registration order
type Tracker struct {
	self      group.Member
	strategy  LeaderStrategy
	logger    logging.Logger
	metrics   *metrics.Registry
	mu        sync.RWMutex
	view      group.View
	leader    group.Member
	installed bool
	listeners []func(Change)
}

// NewTracker creates a tracker with no view.
func NewTracker(cfg Config) *Tracker {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = ViewCreatorStrategy{}
	}
	return &Tracker{
		self:     cfg.Self,
		strategy: strategy,
		logger:   logging.OrDefault(cfg.Logger).With(logging.Component("cluster")),
		metrics:  cfg.Metrics,
	}
}
