package replication

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/lock"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
)

type testNode struct {
	ch      *group.HubChannel
	tracker *cluster.Tracker
	locks   *lock.Manager
	blobs   *storage.MemoryStore
	catalog *storage.Catalog
	repl    *Coordinator
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
	case protocol.Upload:
		n.repl.HandleUpload(from, m)
	case protocol.ConfirmUpload:
		n.repl.HandleConfirm(from, m)
	case protocol.RollbackUpload:
		n.repl.HandleRollback(m)
	case protocol.Delete:
		n.repl.HandleDelete(from, m)
	}
}

func (n *testNode) ViewAccepted(v group.View) { n.tracker.Apply(v) }
func (n *testNode) GetState(io.Writer) error  { return nil }
func (n *testNode) SetState(io.Reader) error  { return nil }

func (n *testNode) read(name string) ([]byte, error) {
	return n.catalog.Read(context.Background(), name)
}

func startCluster(t *testing.T, quorumTimeout time.Duration, ids ...string) (*group.Hub, []*testNode) {
	t.Helper()
	hub := group.NewHub(logging.NewNopLogger())
	nodes := make([]*testNode, len(ids))
	for i, id := range ids {
		self := group.Member{ID: id, Addr: "inproc://" + id}
		ch := hub.Channel("files", self)
		sender := protocol.NewChannelSender(ch)
		tr := cluster.NewTracker(cluster.Config{Self: self, Logger: logging.NewNopLogger()})
		locks := lock.NewManager(lock.Config{
			Membership: tr,
			Sender:     sender,
			Timeout:    2 * time.Second,
			Logger:     logging.NewNopLogger(),
		})
		tr.OnViewChange(locks.ViewChanged)
		blobs := storage.NewMemoryStore()
		catalog := storage.NewCatalog(blobs, logging.NewNopLogger(), nil)
		n := &testNode{
			ch:      ch,
			tracker: tr,
			locks:   locks,
			blobs:   blobs,
			catalog: catalog,
			repl: NewCoordinator(Config{
				Membership:    tr,
				Locks:         locks,
				Catalog:       catalog,
				Sender:        sender,
				QuorumTimeout: quorumTimeout,
				Logger:        logging.NewNopLogger(),
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

type sentMessage struct {
	to  group.Member
	msg protocol.Message
}

// recordingSender keeps what it is asked to send. Broadcasts have a zero to.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *recordingSender) Send(_ context.Context, to group.Member, msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{to: to, msg: msg})
	return nil
}

func (s *recordingSender) Broadcast(_ context.Context, msg protocol.Message) error {
	return s.Send(context.Background(), group.Member{}, msg)
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type fixedMembership struct {
	self  group.Member
	total int
}

func (f fixedMembership) Self() group.Member { return f.self }
func (f fixedMembership) TotalMembers() int  { return f.total }
