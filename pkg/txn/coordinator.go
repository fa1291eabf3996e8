// Package txn replicates account creation. A transaction commits only when
// every peer in the view has stored the account; otherwise it is deleted
// everywhere it was stored.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/lock"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultUndoTTL = 2 * time.Minute
	sendTimeout    = 5 * time.Second
)

// LockKey is the distributed lock key serializing creation of username.
func LockKey(username string) string {
	return "account/" + username
}

// Membership is the view information the coordinator needs.
type Membership interface {
	Self() group.Member
	CurrentMembers() []group.Member
}

// Config configures a Coordinator.
type Config struct {
	Membership Membership
	Locks      *lock.Manager
	Store      accounts.Store
	Sender     protocol.Sender
	Timeout    time.Duration
	UndoTTL    time.Duration
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

type pendingTx struct {
	remaining map[string]bool
	done      chan struct{}
	closed    bool
	err       error
}

func (p *pendingTx) finish(err error) {
	if p.closed {
		return
	}
	p.closed = true
	p.err = err
	close(p.done)
}

type appliedTx struct {
	username string
	expires  time.Time
}

// Coordinator originates account transactions and applies those of peers.
type Coordinator struct {
	members Membership
	locks   *lock.Manager
	store   accounts.Store
	sender  protocol.Sender
	timeout time.Duration
	undoTTL time.Duration
	logger  logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	pending map[string]*pendingTx
	applied map[string]appliedTx
	now     func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	undoTTL := cfg.UndoTTL
	if undoTTL <= 0 {
		undoTTL = DefaultUndoTTL
	}
	return &Coordinator{
		members: cfg.Membership,
		locks:   cfg.Locks,
		store:   cfg.Store,
		sender:  cfg.Sender,
		timeout: timeout,
		undoTTL: undoTTL,
		logger:  logging.OrDefault(cfg.Logger).With(logging.Component("txn")),
		metrics: cfg.Metrics,
		pending: make(map[string]*pendingTx),
		applied: make(map[string]appliedTx),
		now:     time.Now,
	}
}

// CreateAccount stores acct on this node and every peer, or nowhere.
func (c *Coordinator) CreateAccount(ctx context.Context, acct accounts.Account) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordTransaction(txResult(err), time.Since(start))
	}()

	l, err := c.locks.Acquire(ctx, LockKey(acct.Username))
	if err != nil {
		return err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if rerr := l.Release(rctx); rerr != nil {
			c.logger.Warn("lock release failed", logging.Error(rerr))
		}
	}()

	if err := c.store.Save(ctx, acct); err != nil {
		if errors.Is(err, accounts.ErrAccountExists) {
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, acct.Username)
		}
		return err
	}

	peers := c.members.CurrentMembers()
	if len(peers) == 0 {
		c.logger.Info("account created locally", logging.String("username", acct.Username))
		return nil
	}

	txID := uuid.NewString()
	log := c.logger.With(logging.TxID(txID), logging.String("username", acct.Username))
	p := &pendingTx{remaining: make(map[string]bool, len(peers)), done: make(chan struct{})}
	for _, m := range peers {
		p.remaining[m.ID] = true
	}
	c.mu.Lock()
	c.pending[txID] = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, txID)
		c.mu.Unlock()
	}()

	msg := protocol.SaveAccount{TxID: txID, Account: acct, Origin: c.members.Self()}
	if err := c.broadcast(msg); err != nil {
		c.mu.Lock()
		p.finish(fmt.Errorf("%w: broadcast: %v", ErrTransactionAborted, err))
		c.mu.Unlock()
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	case <-ctx.Done():
	}

	c.mu.Lock()
	committed := p.closed && p.err == nil
	cause := p.err
	missing := len(p.remaining)
	c.mu.Unlock()

	if committed {
		log.Info("account transaction committed", logging.Count(len(peers)))
		return nil
	}
	if cause == nil {
		cause = fmt.Errorf("%w: %d of %d peers did not acknowledge within %v",
			ErrReplicationTimeout, missing, len(peers), c.timeout)
	}
	log.Warn("account transaction rolled back", logging.Error(cause))
	c.rollback(txID, acct.Username)
	return cause
}

func (c *Coordinator) rollback(txID, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	c.metrics.RecordRollback("full", "origin")
	if err := c.store.Delete(ctx, username); err != nil && !errors.Is(err, accounts.ErrAccountNotFound) {
		c.logger.Error("local account rollback failed", logging.TxID(txID), logging.Error(err))
	}
	if err := c.sender.Broadcast(ctx, protocol.RollbackAccount{TxID: txID, Username: username}); err != nil {
		c.logger.Error("account rollback broadcast failed", logging.TxID(txID), logging.Error(err))
	}
}

// HandleConfirm processes CONFIRM_TRANSACTION on the originating node.
func (c *Coordinator) HandleConfirm(from group.Member, msg protocol.ConfirmTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[msg.TxID]
	if !ok || p.closed {
		c.metrics.RecordAck("full", "late")
		return
	}
	switch {
	case msg.Duplicate:
		c.metrics.RecordAck("full", "negative")
		p.finish(fmt.Errorf("%w: %s already holds the account", ErrDuplicateAccount, from.ID))
	case !msg.OK:
		c.metrics.RecordAck("full", "negative")
		p.finish(fmt.Errorf("%w: %s: %s", ErrTransactionAborted, from.ID, msg.Reason))
	default:
		c.metrics.RecordAck("full", "positive")
		delete(p.remaining, from.ID)
		if len(p.remaining) == 0 {
			p.finish(nil)
		}
	}
}

func (c *Coordinator) broadcast(msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.sender.Broadcast(ctx, msg)
}

func txResult(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate"
	case errors.Is(err, ErrReplicationTimeout):
		return "timeout"
	case errors.Is(err, ErrTransactionAborted):
		return "aborted"
	default:
		return "failed"
	}
}
