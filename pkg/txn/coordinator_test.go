package txn

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/lock"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
)

type testNode struct {
	ch      *group.HubChannel
	tracker *cluster.Tracker
	locks   *lock.Manager
	store   *accounts.MemoryStore
	txn     *Coordinator
}

func (n *testNode) Receive(from group.Member, payload []byte) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		return
	}
	switch m := msg.(type) {
	case protocol.LockRequest:
		n.locks.HandleRequest(m)
	case protocol.LockRelease:
		n.locks.HandleRelease(m)
	case protocol.LockGranted:
		n.locks.HandleGranted(m)
	case protocol.SaveAccount:
		n.txn.HandleSaveAccount(from, m)
	case protocol.ConfirmTransaction:
		n.txn.HandleConfirm(from, m)
	case protocol.RollbackAccount:
		n.txn.HandleRollback(m)
	}
}

func (n *testNode) ViewAccepted(v group.View) { n.tracker.Apply(v) }
func (n *testNode) GetState(io.Writer) error  { return nil }
func (n *testNode) SetState(io.Reader) error  { return nil }

func (n *testNode) has(username string) bool {
	_, err := n.store.FindByUsername(context.Background(), username)
	return err == nil
}

func startCluster(t *testing.T, timeout time.Duration, ids ...string) (*group.Hub, []*testNode) {
	t.Helper()
	hub := group.NewHub(logging.NewNopLogger())
	nodes := make([]*testNode, len(ids))
	for i, id := range ids {
		self := group.Member{ID: id, Addr: "inproc://" + id}
		ch := hub.Channel("accounts", self)
		sender := protocol.NewChannelSender(ch)
		tr := cluster.NewTracker(cluster.Config{Self: self, Logger: logging.NewNopLogger()})
		locks := lock.NewManager(lock.Config{
			Membership: tr,
			Sender:     sender,
			Timeout:    5 * time.Second,
			Logger:     logging.NewNopLogger(),
		})
		tr.OnViewChange(locks.ViewChanged)
		store := accounts.NewMemoryStore()
		n := &testNode{
			ch:      ch,
			tracker: tr,
			locks:   locks,
			store:   store,
			txn: NewCoordinator(Config{
				Membership: tr,
				Locks:      locks,
				Store:      store,
				Sender:     sender,
				Timeout:    timeout,
				Logger:     logging.NewNopLogger(),
			}),
		}
		ch.SetReceiver(n)
		require.NoError(t, ch.Connect(context.Background()))
		t.Cleanup(func() { _ = ch.Close() })
		nodes[i] = n
	}
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if n.tracker.View().Size() != len(ids) {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return hub, nodes
}

func TestErrorHierarchy(t *testing.T) {
	assert.True(t, errors.Is(ErrDuplicateAccount, ErrTransactionAborted))
	assert.True(t, errors.Is(ErrReplicationTimeout, ErrTransactionAborted))
	assert.False(t, errors.Is(ErrDuplicateAccount, ErrReplicationTimeout))
}

func TestCreateAccountReachesEveryNode(t *testing.T) {
	_, nodes := startCluster(t, 2*time.Second, "a", "b", "c")
	err := nodes[1].txn.CreateAccount(context.Background(), accounts.Account{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	// Commit waits for every peer, so no polling is needed.
	for _, n := range nodes {
		assert.True(t, n.has("alice"), "node %s", n.tracker.Self().ID)
	}
}

func TestCreateAccountSingleNode(t *testing.T) {
	_, nodes := startCluster(t, time.Second, "a")
	require.NoError(t, nodes[0].txn.CreateAccount(context.Background(), accounts.Account{Username: "alice"}))
	assert.True(t, nodes[0].has("alice"))

	err := nodes[0].txn.CreateAccount(context.Background(), accounts.Account{Username: "alice"})
	assert.True(t, errors.Is(err, ErrDuplicateAccount))
}

func TestConcurrentCreateYieldsOneAccount(t *testing.T) {
	_, nodes := startCluster(t, 2*time.Second, "a", "b", "c")

	var wg sync.WaitGroup
	errs := make([]error, len(nodes))
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n *testNode) {
			defer wg.Done()
			errs[i] = n.txn.CreateAccount(context.Background(),
				accounts.Account{Username: "bob", Password: n.tracker.Self().ID})
		}(i, n)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrDuplicateAccount), "got %v", err)
		assert.True(t, errors.Is(err, ErrTransactionAborted))
	}
	assert.Equal(t, 1, succeeded)

	var password string
	for _, n := range nodes {
		all, err := n.store.ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 1)
		if password == "" {
			password = all[0].Password
		}
		assert.Equal(t, password, all[0].Password)
	}
}

func TestPeerDuplicateRollsBack(t *testing.T) {
	_, nodes := startCluster(t, 2*time.Second, "a", "b", "c")
	ctx := context.Background()
	require.NoError(t, nodes[1].store.Save(ctx, accounts.Account{Username: "carol", Password: "b-only"}))

	err := nodes[0].txn.CreateAccount(ctx, accounts.Account{Username: "carol", Password: "new"})
	assert.True(t, errors.Is(err, ErrDuplicateAccount), "got %v", err)
	assert.False(t, nodes[0].has("carol"))

	require.Eventually(t, func() bool { return !nodes[2].has("carol") },
		time.Second, 5*time.Millisecond)
	acct, err := nodes[1].store.FindByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "b-only", acct.Password)
}

func TestUnreachablePeerTimesOut(t *testing.T) {
	hub, nodes := startCluster(t, 200*time.Millisecond, "a", "b", "c")
	hub.Isolate("c")

	err := nodes[0].txn.CreateAccount(context.Background(), accounts.Account{Username: "dave"})
	assert.True(t, errors.Is(err, ErrReplicationTimeout), "got %v", err)
	assert.True(t, errors.Is(err, ErrTransactionAborted))
	assert.False(t, nodes[0].has("dave"))
	require.Eventually(t, func() bool { return !nodes[1].has("dave") },
		time.Second, 5*time.Millisecond)
	assert.False(t, nodes[2].has("dave"))
}

func TestRollbackOnlyTouchesOwnTransaction(t *testing.T) {
	store := accounts.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, accounts.Account{Username: "erin"}))

	c := NewCoordinator(Config{Store: store, Logger: logging.NewNopLogger()})
	c.HandleRollback(protocol.RollbackAccount{TxID: "someone-else", Username: "erin"})

	_, err := store.FindByUsername(ctx, "erin")
	assert.NoError(t, err)
}
