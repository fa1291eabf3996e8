package group

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
)

// join announces self to every seed and waits for a view that includes it.
func (c *NNGChannel) join(ctx context.Context) error {
	var seeds []string
	for _, s := range c.cfg.Seeds {
		if s != c.cfg.Self.Addr {
			seeds = append(seeds, s)
		}
	}
	if len(seeds) == 0 {
		c.formSingleton("no seeds configured")
		return nil
	}

	self := c.cfg.Self
	for _, addr := range seeds {
		if err := c.sendFrame(addr, frame{Type: frameJoin, Subject: &self}); err != nil {
			c.logger.Warn("join request not sent", logging.String("seed", addr), logging.Error(err))
		}
	}

	timer := time.NewTimer(c.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-c.joined:
		return nil
	case <-timer.C:
		c.formSingleton("no seed answered within join timeout")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("join %s: %w", c.cfg.Name, ctx.Err())
	}
}

func (c *NNGChannel) formSingleton(reason string) {
	c.logger.Info("forming new group", logging.String("reason", reason))
	c.installView(View{ID: 1, Creator: c.cfg.Self, Members: []Member{c.cfg.Self}})
}

func (c *NNGChannel) isCoordinatorLocked() bool {
	return len(c.view.Members) > 0 && c.view.Members[0].ID == c.cfg.Self.ID
}

// nextView builds the successor of the current view. The creator is always
// the oldest remaining member.
func nextView(cur View, members []Member) View {
	v := View{ID: cur.ID + 1, Members: members}
	if len(members) > 0 {
		v.Creator = members[0]
	}
	return v
}

func (c *NNGChannel) handleJoin(m Member) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()

	c.mu.Lock()
	if len(c.view.Members) == 0 {
		c.mu.Unlock()
		c.logger.Debug("ignoring join while joining", logging.String("joiner", m.ID))
		return
	}
	if !c.isCoordinatorLocked() {
		coord := c.view.Members[0]
		c.mu.Unlock()
		if err := c.sendFrame(coord.Addr, frame{Type: frameJoin, Subject: &m}); err != nil {
			c.logger.Warn("join forward failed", logging.String("joiner", m.ID), logging.Error(err))
		}
		return
	}

	cur := c.view.Clone()
	idx := cur.IndexOf(m.ID)
	if idx >= 0 && cur.Members[idx] == m {
		c.mu.Unlock()
		_ = c.sendFrame(m.Addr, frame{Type: frameView, View: &cur})
		return
	}
	members := cur.Members
	if idx >= 0 {
		members[idx] = m
	} else {
		members = append(members, m)
	}
	next := nextView(cur, members)
	c.mu.Unlock()

	c.logger.Info("admitting member", logging.String("joiner", m.ID), logging.ViewID(next.ID))
	c.publishView(next)
}

func (c *NNGChannel) handleLeave(m Member) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()

	c.mu.Lock()
	if !c.isCoordinatorLocked() {
		if len(c.view.Members) == 0 {
			c.mu.Unlock()
			return
		}
		coord := c.view.Members[0]
		c.mu.Unlock()
		if err := c.sendFrame(coord.Addr, frame{Type: frameLeave, Subject: &m}); err != nil {
			c.logger.Warn("leave forward failed", logging.String("leaver", m.ID), logging.Error(err))
		}
		return
	}
	cur := c.view.Clone()
	if !cur.Contains(m) {
		c.mu.Unlock()
		return
	}
	next := nextView(cur, cur.Without(m))
	c.mu.Unlock()

	c.logger.Info("member left", logging.String("leaver", m.ID), logging.ViewID(next.ID))
	c.publishView(next)
}

func (c *NNGChannel) handleView(v View) {
	if v.IndexOf(c.cfg.Self.ID) < 0 {
		c.mu.RLock()
		current := c.view.ID
		c.mu.RUnlock()
		if v.ID <= current || len(v.Members) == 0 {
			return
		}
		c.logger.Warn("excluded from view, rejoining", logging.ViewID(v.ID), logging.String("view", v.String()))
		self := c.cfg.Self
		_ = c.sendFrame(v.Members[0].Addr, frame{Type: frameJoin, Subject: &self})
		return
	}
	c.installView(v)
}

// publishView installs v locally and sends it to every other member. A view
// that loses to a newer local one is not sent. Caller holds viewMu.
func (c *NNGChannel) publishView(v View) bool {
	if !c.installView(v) {
		c.logger.Debug("successor view superseded", logging.ViewID(v.ID))
		return false
	}
	for _, m := range v.Without(c.cfg.Self) {
		vv := v
		if err := c.sendFrame(m.Addr, frame{Type: frameView, View: &vv}); err != nil {
			c.logger.Warn("view not delivered", logging.String("to", m.ID), logging.Error(err))
		}
	}
	return true
}

// installView adopts v if it is newer than the current view and includes
// self. Older views are ignored.
func (c *NNGChannel) installView(v View) bool {
	c.mu.Lock()
	if v.ID <= c.view.ID || v.IndexOf(c.cfg.Self.ID) < 0 {
		c.mu.Unlock()
		return false
	}
	old := c.view
	c.view = v.Clone()

	now := time.Now()
	seen := make(map[string]time.Time, len(v.Members))
	for _, m := range v.Members {
		if t, ok := c.lastSeen[m.ID]; ok {
			seen[m.ID] = t
		} else {
			seen[m.ID] = now
		}
	}
	c.lastSeen = seen

	var gone []string
	for _, m := range old.Members {
		if !v.Contains(m) {
			gone = append(gone, m.Addr)
		}
	}
	c.mu.Unlock()

	for _, addr := range gone {
		c.dropPeer(addr)
	}
	c.joinedOnce.Do(func() { close(c.joined) })

	delivered := v.Clone()
	c.mb.put(func() {
		if r := c.currentReceiver(); r != nil {
			r.ViewAccepted(delivered)
		}
	})
	return true
}

func (c *NNGChannel) heartbeatLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.heartbeat()
			c.detectFailures()
		}
	}
}

func (c *NNGChannel) heartbeat() {
	for _, m := range c.View().Without(c.cfg.Self) {
		if err := c.sendFrame(m.Addr, frame{Type: frameHeartbeat}); err != nil {
			c.logger.Debug("heartbeat not sent", logging.String("to", m.ID), logging.Error(err))
		}
	}
}

// detectFailures removes silent members. Only the first member that is not
// suspected acts, so a dead coordinator is replaced by the next oldest.
func (c *NNGChannel) detectFailures() {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()

	c.mu.RLock()
	cur := c.view.Clone()
	now := time.Now()
	suspects := make(map[string]bool)
	for _, m := range cur.Members {
		if m.ID == c.cfg.Self.ID {
			continue
		}
		if now.Sub(c.lastSeen[m.ID]) > c.cfg.FailureTimeout {
			suspects[m.ID] = true
		}
	}
	c.mu.RUnlock()

	if len(suspects) == 0 {
		return
	}

	var live []Member
	for _, m := range cur.Members {
		if !suspects[m.ID] {
			live = append(live, m)
		}
	}
	if live[0].ID != c.cfg.Self.ID {
		return
	}
	for id := range suspects {
		c.logger.Warn("member suspected", logging.String("suspect", id), logging.Duration("failure_timeout", c.cfg.FailureTimeout))
	}
	c.publishView(nextView(cur, live))
}

// leave hands the group a view without self. A coordinator installs it on the
// others directly; any other member asks the coordinator.
func (c *NNGChannel) leave() {
	c.mu.RLock()
	cur := c.view.Clone()
	coordinator := c.isCoordinatorLocked()
	c.mu.RUnlock()

	others := cur.Without(c.cfg.Self)
	if len(others) == 0 {
		return
	}
	if coordinator {
		next := nextView(cur, others)
		for _, m := range others {
			if err := c.sendFrame(m.Addr, frame{Type: frameView, View: &next}); err != nil {
				c.logger.Debug("leave view not delivered", logging.String("to", m.ID), logging.Error(err))
			}
		}
	} else {
		self := c.cfg.Self
		if err := c.sendFrame(cur.Members[0].Addr, frame{Type: frameLeave, Subject: &self}); err != nil {
			c.logger.Debug("leave not delivered", logging.Error(err))
		}
	}
	time.Sleep(leaveFlush)
}
