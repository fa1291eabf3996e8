package cluster

import (
	"strings"

	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
)

// OnViewChange registers fn to run after every accepted view.
func (t *Tracker) OnViewChange(fn func(Change)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Apply installs v. Views older than the current one are ignored and
// reported with ok false.
func (t *Tracker) Apply(v group.View) (Change, bool) {
	t.mu.Lock()
	if t.installed && v.ID != 0 && v.ID <= t.view.ID {
		t.mu.Unlock()
		return Change{}, false
	}

	prev := t.view
	next := v.Clone()
	leader := t.strategy.Leader(next)
	change := Change{
		Previous:      prev,
		Current:       next,
		Joined:        diff(next.Members, prev.Members),
		Left:          diff(prev.Members, next.Members),
		Leader:        leader,
		LeaderChanged: leader.ID != t.leader.ID,
		First:         !t.installed,
	}
	t.view = next
	t.leader = leader
	t.installed = true
	listeners := append([]func(Change){}, t.listeners...)
	t.mu.Unlock()

	isLeader := leader.ID == t.self.ID
	t.metrics.UpdateView(next.ID, next.Size(), isLeader)
	t.logger.Info("view accepted",
		logging.ViewID(next.ID),
		logging.String("members", t.render(next, leader)),
		logging.Member(leader.ID),
		logging.Bool("leader", isLeader),
		logging.Count(next.Size()),
	)

	for _, fn := range listeners {
		fn(change)
	}
	return change, true
}

// ViewAccepted lets a Tracker serve as a group view callback.
func (t *Tracker) ViewAccepted(v group.View) {
	t.Apply(v)
}

// render lists the members, marking the leader with * and self with (me).
func (t *Tracker) render(v group.View, leader group.Member) string {
	parts := make([]string, len(v.Members))
	for i, m := range v.Members {
		s := m.ID
		if m.ID == leader.ID {
			s += "*"
		}
		if m.ID == t.self.ID {
			s += "(me)"
		}
		parts[i] = s
	}
	return strings.Join(parts, " ")
}

func diff(a, b []group.Member) []group.Member {
	var out []group.Member
	for _, m := range a {
		found := false
		for _, x := range b {
			if x.ID == m.ID {
				found = true
				break
			}
		}
		if !found {
			out = append(out, m)
		}
	}
	return out
}

// Self returns the local member.
func (t *Tracker) Self() group.Member {
	return t.self
}

// Strategy returns the leader strategy in use.
func (t *Tracker) Strategy() LeaderStrategy {
	return t.strategy
}

// View returns a copy of the current view.
func (t *Tracker) View() group.View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view.Clone()
}

// Leader returns the current leader, or ErrNoView.
func (t *Tracker) Leader() (group.Member, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.installed || t.leader.IsZero() {
		return group.Member{}, ErrNoView
	}
	return t.leader, nil
}

// IsLeader reports whether the local member leads the current view.
func (t *Tracker) IsLeader() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.installed && t.leader.ID == t.self.ID
}

// CurrentMembers returns the view members other than self, in view order.
func (t *Tracker) CurrentMembers() []group.Member {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view.Without(t.self)
}

// TotalMembers returns the view size, counting self at least once.
func (t *Tracker) TotalMembers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.view.Size()
	if !t.view.Contains(t.self) {
		n++
	}
	return n
}

// Contains reports whether id is in the current view.
func (t *Tracker) Contains(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view.IndexOf(id) >= 0
}
