package cluster

import "github.com/dd0wney/cluso-filestore/pkg/group"

// LeaderStrategy picks the leader of a view. Every node must reach the same
// answer for the same view, so implementations may only look at the view.
type LeaderStrategy interface {
	Leader(v group.View) group.Member
	Name() string
}

// ViewCreatorStrategy treats the member that installed the view as leader.
// This is only consistent while the group agrees on the creator of every
// view; a transient disagreement gives two leaders until the next view.
type ViewCreatorStrategy struct{}

func (ViewCreatorStrategy) Leader(v group.View) group.Member {
	if !v.Creator.IsZero() {
		return v.Creator
	}
	return OldestMemberStrategy{}.Leader(v)
}

func (ViewCreatorStrategy) Name() string { return "view-creator" }

// OldestMemberStrategy picks the first member of the view.
type OldestMemberStrategy struct{}

func (OldestMemberStrategy) Leader(v group.View) group.Member {
	if len(v.Members) == 0 {
		return group.Member{}
	}
	return v.Members[0]
}

func (OldestMemberStrategy) Name() string { return "oldest-member" }

// StrategyByName returns the strategy for a configuration value.
func StrategyByName(name string) (LeaderStrategy, bool) {
	switch name {
	case "", "view-creator":
		return ViewCreatorStrategy{}, true
	case "oldest-member":
		return OldestMemberStrategy{}, true
	default:
		return nil, false
	}
}
