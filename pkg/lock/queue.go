package lock

import (
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
)

// enqueue appends e to the queue of key and grants it if it is the head.
// Requests already queued are ignored.
func (m *Manager) enqueue(key string, e entry) {
	m.mu.Lock()
	q := m.queues[key]
	for _, x := range q {
		if x.id == e.id {
			m.mu.Unlock()
			return
		}
	}
	m.queues[key] = append(q, e)
	head := len(q) == 0
	m.observeLocked()
	m.mu.Unlock()

	if head {
		m.grant(key, e)
	}
}

// dequeue removes the request id from key's queue. If it was the head, the
// next entry is granted.
func (m *Manager) dequeue(key, id string) {
	m.mu.Lock()
	q := m.queues[key]
	idx := -1
	for i, x := range q {
		if x.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	q = append(q[:idx:idx], q[idx+1:]...)
	var next *entry
	if len(q) == 0 {
		delete(m.queues, key)
	} else {
		m.queues[key] = q
		if idx == 0 {
			next = &q[0]
		}
	}
	m.observeLocked()
	var grant entry
	if next != nil {
		grant = *next
	}
	m.mu.Unlock()

	if next != nil {
		m.grant(key, grant)
	}
}

// purge drops entries whose requester left the view.
func (m *Manager) purge() {
	type pending struct {
		key string
		e   entry
	}
	var grants []pending

	m.mu.Lock()
	for key, q := range m.queues {
		kept := q[:0:0]
		for _, e := range q {
			if m.members.Contains(e.requester.ID) {
				kept = append(kept, e)
			} else {
				m.logger.Info("dropping lock entry of departed member",
					logging.Key(key), logging.Member(e.requester.ID))
			}
		}
		switch {
		case len(kept) == 0:
			delete(m.queues, key)
		case kept[0].id != q[0].id:
			m.queues[key] = kept
			grants = append(grants, pending{key: key, e: kept[0]})
		default:
			m.queues[key] = kept
		}
	}
	m.observeLocked()
	m.mu.Unlock()

	for _, g := range grants {
		m.grant(g.key, g.e)
	}
}

// grant tells the head of a queue it holds the lock.
func (m *Manager) grant(key string, e entry) {
	self := m.members.Self()
	if e.requester.ID == self.ID {
		m.grantLocal(key, e.id)
		return
	}
	if err := m.send(e.requester, protocol.LockGranted{Key: key, RequestID: e.id}); err != nil {
		m.logger.Warn("lock grant not delivered",
			logging.Key(key), logging.Member(e.requester.ID), logging.Error(err))
	}
}

func (m *Manager) observeLocked() {
	depth := 0
	for _, q := range m.queues {
		depth += len(q)
	}
	m.metrics.SetLockQueueDepth(depth)
}

// QueueLen returns the number of entries queued for key on this node.
func (m *Manager) QueueLen(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[key])
}

// Holder returns the requester at the head of key's queue on this node.
func (m *Manager) Holder(key string) (group.Member, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[key]
	if len(q) == 0 {
		return group.Member{}, false
	}
	return q[0].requester, true
}
