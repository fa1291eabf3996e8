// Package replication drives replicated file writes. Uploads and edits
// commit once a majority of the view has applied them and roll back
// everywhere otherwise; deletes are broadcast best-effort.
package replication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/lock"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
)

const (
	DefaultQuorumTimeout = 15 * time.Second
	DefaultUndoTTL       = 2 * time.Minute
	sendTimeout          = 5 * time.Second
)

// Membership is the view information the coordinator needs.
type Membership interface {
	Self() group.Member
	TotalMembers() int
}

// Config configures a Coordinator.
type Config struct {
	Membership    Membership
	Locks         *lock.Manager
	Catalog       *storage.Catalog
	Sender        protocol.Sender
	QuorumTimeout time.Duration
	UndoTTL       time.Duration
	Logger        logging.Logger
	Metrics       *metrics.Registry
}

// pendingWrite tracks acknowledgements for one replicated write.
type pendingWrite struct {
	needed int
	acks   map[string]bool
	done   chan struct{}
	closed bool
	err    error
}

// appliedWrite is a peer's record of a write it applied for another node.
type appliedWrite struct {
	undo    storage.Undo
	content []byte
	expires time.Time
}

// Coordinator runs on every node. It originates writes for local callers and
// applies writes originated by peers.
type Coordinator struct {
	members       Membership
	locks         *lock.Manager
	catalog       *storage.Catalog
	sender        protocol.Sender
	quorumTimeout time.Duration
	undoTTL       time.Duration
	logger        logging.Logger
	metrics       *metrics.Registry

	mu      sync.Mutex
	pending map[string]*pendingWrite
	applied map[string]appliedWrite
	now     func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	quorumTimeout := cfg.QuorumTimeout
	if quorumTimeout <= 0 {
		quorumTimeout = DefaultQuorumTimeout
	}
	undoTTL := cfg.UndoTTL
	if undoTTL <= 0 {
		undoTTL = DefaultUndoTTL
	}
	return &Coordinator{
		members:       cfg.Membership,
		locks:         cfg.Locks,
		catalog:       cfg.Catalog,
		sender:        cfg.Sender,
		quorumTimeout: quorumTimeout,
		undoTTL:       undoTTL,
		logger:        logging.OrDefault(cfg.Logger).With(logging.Component("replication")),
		metrics:       cfg.Metrics,
		pending:       make(map[string]*pendingWrite),
		applied:       make(map[string]appliedWrite),
		now:           time.Now,
	}
}

// QuorumSize is the majority of total members, self included.
func QuorumSize(total int) int {
	if total < 1 {
		total = 1
	}
	return total/2 + 1
}

// finish records the outcome of a pending write once.
func (p *pendingWrite) finish(err error) {
	if p.closed {
		return
	}
	p.closed = true
	p.err = err
	close(p.done)
}

// register creates tracking state for opID with self already acknowledged.
func (c *Coordinator) register(opID string, needed int) *pendingWrite {
	p := &pendingWrite{
		needed: needed,
		acks:   map[string]bool{c.members.Self().ID: true},
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[opID] = p
	if len(p.acks) >= needed {
		p.finish(nil)
	}
	return p
}

func (c *Coordinator) forget(opID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, opID)
}

// HandleConfirm processes CONFIRM_UPLOAD on the originating node.
func (c *Coordinator) HandleConfirm(from group.Member, msg protocol.ConfirmUpload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[msg.OperationID]
	if !ok || p.closed {
		c.metrics.RecordAck("quorum", "late")
		c.logger.Debug("late upload ack",
			logging.OperationID(msg.OperationID), logging.Member(from.ID))
		return
	}
	if !msg.OK {
		c.metrics.RecordAck("quorum", "negative")
		c.logger.Warn("upload rejected by peer",
			logging.OperationID(msg.OperationID), logging.File(msg.Name),
			logging.Member(from.ID), logging.String("reason", msg.Reason))
		p.finish(fmt.Errorf("%w: %s rejected %s: %s", ErrQuorumNotReached, from.ID, msg.Name, msg.Reason))
		return
	}
	c.metrics.RecordAck("quorum", "positive")
	p.acks[from.ID] = true
	if len(p.acks) >= p.needed {
		p.finish(nil)
	}
}

func (c *Coordinator) sendTo(to group.Member, msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.sender.Send(ctx, to, msg)
}

func (c *Coordinator) broadcast(msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.sender.Broadcast(ctx, msg)
}
