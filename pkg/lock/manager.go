// Package lock implements leader-mediated mutual exclusion per resource key.
//
// The leader of the current view owns one FIFO queue per key. The head of a
// queue holds the lock. Requesters on other nodes send LOCK_REQUEST to the
// leader and wait for LOCK_GRANTED; releases are broadcast. Queue state is
// never persisted: when the leader changes, every node re-sends its held
// requests and then its waiting ones to the new leader.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
)

const (
	DefaultTimeout     = 30 * time.Second
	defaultSendTimeout = 5 * time.Second
)

// Membership is the view information the manager needs.
type Membership interface {
	Self() group.Member
	Leader() (group.Member, error)
	IsLeader() bool
	Contains(id string) bool
}

// Config configures a Manager.
type Config struct {
	Membership Membership
	Sender     protocol.Sender
	Timeout    time.Duration
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// entry is one queued request on the leader.
type entry struct {
	requester group.Member
	id        string
}

// request is a local acquirer.
type request struct {
	key     string
	id      string
	seq     uint64
	held    bool
	granted chan struct{}
}

// Manager grants locks. One Manager runs on every node; only the one on the
// current leader keeps queues.
type Manager struct {
	members Membership
	sender  protocol.Sender
	timeout time.Duration
	logger  logging.Logger
	metrics *metrics.Registry

	mu       sync.Mutex
	queues   map[string][]entry
	requests map[string]*request
	seq      uint64
}

// NewManager creates a lock manager.
func NewManager(cfg Config) *Manager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		members:  cfg.Membership,
		sender:   cfg.Sender,
		timeout:  timeout,
		logger:   logging.OrDefault(cfg.Logger).With(logging.Component("lock")),
		metrics:  cfg.Metrics,
		queues:   make(map[string][]entry),
		requests: make(map[string]*request),
	}
}

// Lock is a granted lock. Release it exactly once; extra calls do nothing.
type Lock struct {
	Key       string
	RequestID string

	m    *Manager
	once sync.Once
}

// Release gives the lock up.
func (l *Lock) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		err = l.m.release(ctx, l.Key, l.RequestID)
	})
	return err
}

// Acquire blocks until key is granted to this caller, the timeout passes
// (ErrLockTimeout) or ctx ends.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lock, error) {
	start := time.Now()
	leader, err := m.members.Leader()
	if err != nil {
		m.metrics.RecordLockAcquire("no_leader", 0)
		return nil, fmt.Errorf("%w: %v", ErrNoLeader, err)
	}

	self := m.members.Self()
	req := &request{key: key, id: uuid.NewString(), granted: make(chan struct{})}
	m.mu.Lock()
	m.seq++
	req.seq = m.seq
	m.requests[req.id] = req
	m.mu.Unlock()

	if leader.ID == self.ID {
		m.enqueue(key, entry{requester: self, id: req.id})
	} else if err := m.send(leader, protocol.LockRequest{Key: key, RequestID: req.id, Requester: self}); err != nil {
		// A leader change re-sends every outstanding request.
		m.logger.Warn("lock request not delivered",
			logging.Key(key), logging.Member(leader.ID), logging.Error(err))
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-req.granted:
		m.metrics.RecordLockAcquire("granted", time.Since(start))
		m.logger.Debug("lock granted", logging.Key(key), logging.Latency(time.Since(start)))
		return &Lock{Key: key, RequestID: req.id, m: m}, nil
	case <-timer.C:
		m.abandon(req)
		m.metrics.RecordLockAcquire("timeout", time.Since(start))
		m.logger.Warn("lock acquisition timed out", logging.Key(key), logging.Latency(m.timeout))
		return nil, fmt.Errorf("%w: %s after %v", ErrLockTimeout, key, m.timeout)
	case <-ctx.Done():
		m.abandon(req)
		m.metrics.RecordLockAcquire("cancelled", time.Since(start))
		return nil, ctx.Err()
	}
}

// abandon withdraws a request that stopped waiting. If a grant raced the
// timeout the lock is released.
func (m *Manager) abandon(req *request) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
	defer cancel()
	if err := m.release(ctx, req.key, req.id); err != nil {
		m.logger.Warn("withdrawing lock request failed", logging.Key(req.key), logging.Error(err))
	}
}

func (m *Manager) release(ctx context.Context, key, id string) error {
	m.mu.Lock()
	delete(m.requests, id)
	m.mu.Unlock()

	if m.members.IsLeader() {
		m.dequeue(key, id)
		return nil
	}
	self := m.members.Self()
	return m.sender.Broadcast(ctx, protocol.LockRelease{Key: key, RequestID: id, Requester: self})
}

func (m *Manager) send(to group.Member, msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
	defer cancel()
	return m.sender.Send(ctx, to, msg)
}

// grantLocal marks a local request granted. A grant for a request nobody
// waits for any more is handed straight back.
func (m *Manager) grantLocal(key, id string) {
	m.mu.Lock()
	req, ok := m.requests[id]
	if ok && !req.held {
		req.held = true
		close(req.granted)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("returning grant for abandoned request", logging.Key(key))
		if err := m.release(context.Background(), key, id); err != nil {
			m.logger.Warn("returning abandoned grant failed", logging.Key(key), logging.Error(err))
		}
	}
}

// HandleGranted processes LOCK_GRANTED.
func (m *Manager) HandleGranted(msg protocol.LockGranted) {
	m.metrics.RecordLockMessage("granted")
	m.grantLocal(msg.Key, msg.RequestID)
}

// HandleRequest processes LOCK_REQUEST on the leader.
func (m *Manager) HandleRequest(msg protocol.LockRequest) {
	m.metrics.RecordLockMessage("request")
	if !m.members.IsLeader() {
		m.logger.Warn("dropping lock request, not leader",
			logging.Key(msg.Key), logging.Member(msg.Requester.ID))
		return
	}
	m.enqueue(msg.Key, entry{requester: msg.Requester, id: msg.RequestID})
}

// HandleRelease processes LOCK_RELEASE. Only the leader acts on it.
func (m *Manager) HandleRelease(msg protocol.LockRelease) {
	m.metrics.RecordLockMessage("release")
	if !m.members.IsLeader() {
		return
	}
	m.dequeue(msg.Key, msg.RequestID)
}

// ViewChanged re-targets outstanding requests after a leader change and, on
// the leader, drops queue entries of departed members.
func (m *Manager) ViewChanged(c cluster.Change) {
	if c.LeaderChanged {
		m.mu.Lock()
		m.queues = make(map[string][]entry)
		m.mu.Unlock()
		m.resend(c.Leader)
		return
	}
	if m.members.IsLeader() && len(c.Left) > 0 {
		m.purge()
	}
}

// resend hands held requests to the new leader first, then waiting ones,
// each group in acquisition order.
func (m *Manager) resend(leader group.Member) {
	m.mu.Lock()
	reqs := make([]*request, 0, len(m.requests))
	for _, r := range m.requests {
		reqs = append(reqs, r)
	}
	m.mu.Unlock()

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].held != reqs[j].held {
			return reqs[i].held
		}
		return reqs[i].seq < reqs[j].seq
	})

	self := m.members.Self()
	for _, r := range reqs {
		if leader.ID == self.ID {
			m.enqueue(r.key, entry{requester: self, id: r.id})
			continue
		}
		if err := m.send(leader, protocol.LockRequest{Key: r.key, RequestID: r.id, Requester: self}); err != nil {
			m.logger.Warn("re-sending lock request failed",
				logging.Key(r.key), logging.Member(leader.ID), logging.Error(err))
		}
	}
	if len(reqs) > 0 {
		m.logger.Info("lock requests re-sent to new leader",
			logging.Member(leader.ID), logging.Count(len(reqs)))
	}
}
