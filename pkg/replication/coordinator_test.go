package replication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
)

func TestQuorumSize(t *testing.T) {
	tests := []struct{ total, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 2}, {4, 3}, {5, 3}, {7, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuorumSize(tt.total), "total=%d", tt.total)
	}
}

func TestQuorumsIntersect(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("two quorums of the same view overlap", prop.ForAll(
		func(n int) bool {
			q := QuorumSize(n)
			return q <= n && 2*q > n
		},
		gen.IntRange(1, 1000),
	))
	properties.TestingRun(t)
}

func TestUploadCommitsOnAllNodes(t *testing.T) {
	_, nodes := startCluster(t, 2*time.Second, "a", "b", "c")

	require.NoError(t, nodes[0].repl.Upload(context.Background(), "a.txt", []byte{1, 2, 3}))
	for _, n := range nodes {
		n := n
		require.Eventually(t, func() bool {
			got, err := n.read("a.txt")
			return err == nil && string(got) == string([]byte{1, 2, 3})
		}, time.Second, 5*time.Millisecond, "node %s", n.tracker.Self().ID)
	}
}

func TestUploadFromFollower(t *testing.T) {
	_, nodes := startCluster(t, 2*time.Second, "a", "b", "c")
	require.NoError(t, nodes[2].repl.Upload(context.Background(), "f", []byte("from c")))
	got, err := nodes[2].read("f")
	require.NoError(t, err)
	assert.Equal(t, "from c", string(got))
	require.Eventually(t, func() bool { return nodes[0].locks.QueueLen("f") == 0 },
		time.Second, 5*time.Millisecond)
}

func TestUploadSingleNode(t *testing.T) {
	_, nodes := startCluster(t, time.Second, "solo")
	require.NoError(t, nodes[0].repl.Upload(context.Background(), "f", []byte("x")))
	got, err := nodes[0].read("f")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestUploadRollsBackWithoutQuorum(t *testing.T) {
	hub, nodes := startCluster(t, 200*time.Millisecond, "a", "b", "c")
	hub.Isolate("b")
	hub.Isolate("c")

	err := nodes[0].repl.Upload(context.Background(), "a.txt", []byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrQuorumNotReached), "got %v", err)

	for _, n := range nodes {
		_, err := n.read("a.txt")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "node %s", n.tracker.Self().ID)
	}
	assert.Empty(t, nodes[0].catalog.List())
}

func TestFailedOverwriteRestoresPreviousContent(t *testing.T) {
	hub, nodes := startCluster(t, 200*time.Millisecond, "a", "b", "c")
	ctx := context.Background()
	require.NoError(t, nodes[0].repl.Upload(ctx, "f", []byte("v1")))
	for _, n := range nodes {
		n := n
		require.Eventually(t, func() bool {
			got, err := n.read("f")
			return err == nil && string(got) == "v1"
		}, time.Second, 5*time.Millisecond)
	}

	hub.Isolate("b")
	hub.Isolate("c")
	err := nodes[0].repl.Upload(ctx, "f", []byte("v2"))
	require.True(t, errors.Is(err, ErrQuorumNotReached))

	for _, n := range nodes {
		got, err := n.read("f")
		require.NoError(t, err)
		assert.Equal(t, "v1", string(got))
	}
}

func TestNegativeAckRollsBackImmediately(t *testing.T) {
	_, nodes := startCluster(t, 10*time.Second, "a", "b")
	nodes[1].blobs.SetFailPuts(true)

	start := time.Now()
	err := nodes[0].repl.Upload(context.Background(), "f", []byte("x"))
	assert.True(t, errors.Is(err, ErrQuorumNotReached))
	assert.Contains(t, err.Error(), "b rejected")
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = nodes[0].read("f")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLocalFailureAbortsBeforeBroadcast(t *testing.T) {
	_, nodes := startCluster(t, time.Second, "a", "b")
	nodes[0].blobs.SetFailPuts(true)

	err := nodes[0].repl.Upload(context.Background(), "f", []byte("x"))
	assert.True(t, errors.Is(err, storage.ErrLocalIO))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, nodes[1].catalog.List())
}

func TestEditAppends(t *testing.T) {
	_, nodes := startCluster(t, 2*time.Second, "a", "b", "c")
	ctx := context.Background()

	require.NoError(t, nodes[1].repl.Upload(ctx, "log.txt", []byte("ab")))
	require.Eventually(t, func() bool {
		got, err := nodes[2].read("log.txt")
		return err == nil && string(got) == "ab"
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, nodes[2].repl.Edit(ctx, "log.txt", []byte("cd")))
	for _, n := range nodes {
		n := n
		require.Eventually(t, func() bool {
			got, err := n.read("log.txt")
			return err == nil && string(got) == "abcd"
		}, time.Second, 5*time.Millisecond)
	}

	err := nodes[0].repl.Edit(ctx, "missing.txt", []byte("x"))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDeleteIsBroadcast(t *testing.T) {
	_, nodes := startCluster(t, 2*time.Second, "a", "b", "c")
	ctx := context.Background()

	require.NoError(t, nodes[0].repl.Upload(ctx, "f", []byte("x")))
	for _, n := range nodes {
		n := n
		require.Eventually(t, func() bool { _, err := n.read("f"); return err == nil },
			time.Second, 5*time.Millisecond)
	}

	require.NoError(t, nodes[1].repl.Delete(ctx, "f"))
	for _, n := range nodes {
		n := n
		require.Eventually(t, func() bool {
			_, err := n.read("f")
			return errors.Is(err, storage.ErrNotFound)
		}, time.Second, 5*time.Millisecond)
	}

	assert.True(t, errors.Is(nodes[1].repl.Delete(ctx, "f"), storage.ErrNotFound))
}

func TestInvalidNameRejected(t *testing.T) {
	_, nodes := startCluster(t, time.Second, "a")
	err := nodes[0].repl.Upload(context.Background(), "../x", []byte("x"))
	assert.True(t, errors.Is(err, storage.ErrInvalidName))
}

func newPeer(t *testing.T) (*Coordinator, *recordingSender, *storage.Catalog) {
	t.Helper()
	sender := &recordingSender{}
	catalog := storage.NewCatalog(storage.NewMemoryStore(), logging.NewNopLogger(), nil)
	c := NewCoordinator(Config{
		Membership: fixedMembership{self: group.Member{ID: "peer"}, total: 3},
		Catalog:    catalog,
		Sender:     sender,
		UndoTTL:    time.Minute,
		Logger:     logging.NewNopLogger(),
	})
	return c, sender, catalog
}

func TestPeerAcknowledgesToOrigin(t *testing.T) {
	c, sender, _ := newPeer(t)
	origin := group.Member{ID: "origin"}
	c.HandleUpload(group.Member{ID: "relay"}, protocol.Upload{
		OperationID: "op1", Name: "f", Content: []byte("x"), Origin: origin,
	})

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "origin", msgs[0].to.ID)
	ack, ok := msgs[0].msg.(protocol.ConfirmUpload)
	require.True(t, ok)
	assert.True(t, ack.OK)
	assert.Equal(t, "op1", ack.OperationID)
}

func TestPeerRollbackRestoresPreImage(t *testing.T) {
	c, _, catalog := newPeer(t)
	ctx := context.Background()
	_, err := catalog.Write(ctx, "f", []byte("old"))
	require.NoError(t, err)

	c.HandleUpload(group.Member{ID: "o"}, protocol.Upload{OperationID: "op1", Name: "f", Content: []byte("new"), Origin: group.Member{ID: "o"}})
	c.HandleRollback(protocol.RollbackUpload{OperationID: "op1", Name: "f"})

	got, err := catalog.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	assert.Equal(t, 0, c.AppliedCount())
}

func TestPeerRollbackKeepsLaterWrite(t *testing.T) {
	c, _, catalog := newPeer(t)
	ctx := context.Background()

	c.HandleUpload(group.Member{ID: "o"}, protocol.Upload{OperationID: "op1", Name: "f", Content: []byte("first"), Origin: group.Member{ID: "o"}})
	_, err := catalog.Write(ctx, "f", []byte("second"))
	require.NoError(t, err)
	c.HandleRollback(protocol.RollbackUpload{OperationID: "op1", Name: "f"})

	got, err := catalog.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestPeerRejectsWhenStorageFails(t *testing.T) {
	sender := &recordingSender{}
	blobs := storage.NewMemoryStore()
	blobs.SetFailPuts(true)
	c := NewCoordinator(Config{
		Membership: fixedMembership{self: group.Member{ID: "peer"}, total: 2},
		Catalog:    storage.NewCatalog(blobs, logging.NewNopLogger(), nil),
		Sender:     sender,
		Logger:     logging.NewNopLogger(),
	})
	c.HandleUpload(group.Member{ID: "o"}, protocol.Upload{OperationID: "op1", Name: "f", Content: []byte("x"), Origin: group.Member{ID: "o"}})

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	ack := msgs[0].msg.(protocol.ConfirmUpload)
	assert.False(t, ack.OK)
	assert.NotEmpty(t, ack.Reason)
	assert.Equal(t, 0, c.AppliedCount())
}

func TestUndoRecordsExpire(t *testing.T) {
	c, _, _ := newPeer(t)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.HandleUpload(group.Member{ID: "o"}, protocol.Upload{OperationID: "op1", Name: "f", Content: []byte("x"), Origin: group.Member{ID: "o"}})
	assert.Equal(t, 1, c.AppliedCount())

	now = now.Add(2 * time.Minute)
	c.HandleUpload(group.Member{ID: "o"}, protocol.Upload{OperationID: "op2", Name: "g", Content: []byte("y"), Origin: group.Member{ID: "o"}})
	assert.Equal(t, 1, c.AppliedCount())

	// An expired operation can no longer be rolled back.
	c.HandleRollback(protocol.RollbackUpload{OperationID: "op1", Name: "f"})
	assert.Equal(t, 1, c.AppliedCount())
}

func TestLateAckIsIgnored(t *testing.T) {
	c, _, _ := newPeer(t)
	c.HandleConfirm(group.Member{ID: "x"}, protocol.ConfirmUpload{OperationID: "gone", Name: "f", OK: true})
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.pending)
}
