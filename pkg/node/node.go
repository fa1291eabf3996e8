// Package node composes a backend file node: it joins the cluster group,
// dispatches cluster messages to the coordinators and serves the RPC
// operations on top of them.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/auth"
	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/health"
	"github.com/dd0wney/cluso-filestore/pkg/lock"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
	"github.com/dd0wney/cluso-filestore/pkg/replication"
	"github.com/dd0wney/cluso-filestore/pkg/statetransfer"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
	"github.com/dd0wney/cluso-filestore/pkg/txn"
)

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("node: not started")

// Timeouts bounds the blocking waits of the coordinators. Zero values fall
// back to each package's default.
type Timeouts struct {
	Lock          time.Duration
	Quorum        time.Duration
	Transaction   time.Duration
	StateTransfer time.Duration
	UndoTTL       time.Duration
}

// Config configures a Node.
type Config struct {
	// Cluster carries replication, lock and transaction traffic.
	Cluster group.Channel
	// RPC is the group the gateway watches. Its member should carry the
	// node's API URL. Optional.
	RPC group.Channel

	Blobs    storage.BlobStore
	Accounts accounts.Store
	Scheme   accounts.CredentialScheme
	Tokens   *auth.TokenManager
	Strategy cluster.LeaderStrategy
	Timeouts Timeouts
	Logger   logging.Logger
	Metrics  *metrics.Registry
}

// Node is one backend of the file store.
type Node struct {
	cluster group.Channel
	rpc     group.Channel
	store   accounts.Store
	scheme  accounts.CredentialScheme
	logger  logging.Logger
	metrics *metrics.Registry

	catalog     *storage.Catalog
	tracker     *cluster.Tracker
	locks       *lock.Manager
	replication *replication.Coordinator
	txn         *txn.Coordinator
	state       *statetransfer.Handler
	auth        *auth.Authenticator
	probes      *health.Checker

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	started bool
}

// New wires a node. Nothing touches the network until Start.
func New(cfg Config) (*Node, error) {
	switch {
	case cfg.Cluster == nil:
		return nil, errors.New("node: cluster channel is required")
	case cfg.Blobs == nil:
		return nil, errors.New("node: blob store is required")
	case cfg.Accounts == nil:
		return nil, errors.New("node: account store is required")
	case cfg.Tokens == nil:
		return nil, errors.New("node: token manager is required")
	}
	scheme := cfg.Scheme
	if scheme == nil {
		scheme = accounts.PlaintextScheme{}
	}

	self := cfg.Cluster.Address()
	logger := logging.OrDefault(cfg.Logger).With(logging.Member(self.ID))
	sender := protocol.NewChannelSender(cfg.Cluster)

	n := &Node{
		cluster: cfg.Cluster,
		rpc:     cfg.RPC,
		store:   cfg.Accounts,
		scheme:  scheme,
		logger:  logger.With(logging.Component("node")),
		metrics: cfg.Metrics,
		ready:   make(chan struct{}),
	}
	n.catalog = storage.NewCatalog(cfg.Blobs, logger, cfg.Metrics)
	n.tracker = cluster.NewTracker(cluster.Config{
		Self:     self,
		Strategy: cfg.Strategy,
		Logger:   logger,
		Metrics:  cfg.Metrics,
	})
	n.locks = lock.NewManager(lock.Config{
		Membership: n.tracker,
		Sender:     sender,
		Timeout:    cfg.Timeouts.Lock,
		Logger:     logger,
		Metrics:    cfg.Metrics,
	})
	n.replication = replication.NewCoordinator(replication.Config{
		Membership:    n.tracker,
		Locks:         n.locks,
		Catalog:       n.catalog,
		Sender:        sender,
		QuorumTimeout: cfg.Timeouts.Quorum,
		UndoTTL:       cfg.Timeouts.UndoTTL,
		Logger:        logger,
		Metrics:       cfg.Metrics,
	})
	n.txn = txn.NewCoordinator(txn.Config{
		Membership: n.tracker,
		Locks:      n.locks,
		Store:      cfg.Accounts,
		Sender:     sender,
		Timeout:    cfg.Timeouts.Transaction,
		UndoTTL:    cfg.Timeouts.UndoTTL,
		Logger:     logger,
		Metrics:    cfg.Metrics,
	})
	n.state = statetransfer.NewHandler(statetransfer.Config{
		Catalog: n.catalog,
		Store:   cfg.Accounts,
		Timeout: cfg.Timeouts.StateTransfer,
		Logger:  logger,
		Metrics: cfg.Metrics,
	})
	n.auth = auth.NewAuthenticator(cfg.Accounts, scheme, cfg.Tokens)

	n.probes = n.newProbes()

	n.tracker.OnViewChange(n.locks.ViewChanged)
	n.tracker.OnViewChange(n.onViewChange)
	cfg.Cluster.SetReceiver(dispatcher{n: n})
	if cfg.RPC != nil {
		rpcLogger := logger.With(logging.Component("rpc-group"))
		cfg.RPC.SetReceiver(group.ViewListener(func(v group.View) {
			rpcLogger.Debug("rpc group view", logging.ViewID(v.ID), logging.String("members", v.String()))
		}))
	}
	return n, nil
}

// Start rebuilds the catalog from the blob store, joins the cluster group,
// pulls state from the leader when joining an existing cluster and finally
// joins the RPC group so the gateway starts routing to this node.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = true
	n.mu.Unlock()

	if err := n.catalog.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild catalog: %w", err)
	}
	if err := n.cluster.Connect(ctx); err != nil {
		return fmt.Errorf("join %s: %w", n.cluster.Name(), err)
	}

	select {
	case <-n.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	if n.rpc != nil {
		if err := n.rpc.Connect(ctx); err != nil {
			return fmt.Errorf("join %s: %w", n.rpc.Name(), err)
		}
	}
	n.logger.Info("node started",
		logging.Count(len(n.catalog.List())),
		logging.Bool("leader", n.tracker.IsLeader()))
	return nil
}

// onViewChange pulls state once, on the first view, unless this node leads it.
func (n *Node) onViewChange(c cluster.Change) {
	if !c.First {
		return
	}
	if c.Leader.IsZero() || c.Leader.ID == n.tracker.Self().ID {
		n.markReady()
		return
	}
	go func() {
		defer n.markReady()
		_ = n.state.Pull(context.Background(), n.cluster, c.Leader)
	}()
}

func (n *Node) markReady() {
	n.readyOnce.Do(func() { close(n.ready) })
}

// Ready is closed once the node has its initial state.
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Stop leaves both groups and closes the account store.
func (n *Node) Stop() error {
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	var errs []error
	if n.rpc != nil {
		errs = append(errs, n.rpc.Close())
	}
	errs = append(errs, n.cluster.Close(), n.store.Close())
	n.logger.Info("node stopped")
	return errors.Join(errs...)
}

func (n *Node) Self() group.Member         { return n.tracker.Self() }
func (n *Node) Tracker() *cluster.Tracker  { return n.tracker }
func (n *Node) Catalog() *storage.Catalog  { return n.catalog }
func (n *Node) Locks() *lock.Manager       { return n.locks }
func (n *Node) Tokens() *auth.TokenManager { return n.auth.Tokens() }
func (n *Node) Probes() *health.Checker    { return n.probes }
