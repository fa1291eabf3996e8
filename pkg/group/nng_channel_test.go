package group

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/transport"
)

func nngMember(t *testing.T, id string) Member {
	return Member{
		ID:        id,
		Addr:      fmt.Sprintf("inproc://%s-%s-frames", t.Name(), id),
		StateAddr: fmt.Sprintf("inproc://%s-%s-state", t.Name(), id),
		API:       "http://" + id,
	}
}

func startNNG(t *testing.T, self Member, seeds ...string) (*NNGChannel, *recorder) {
	t.Helper()
	ch, err := NewNNGChannel(NNGConfig{
		Name:              "test",
		Self:              self,
		Seeds:             seeds,
		HeartbeatInterval: 20 * time.Millisecond,
		FailureTimeout:    300 * time.Millisecond,
		JoinTimeout:       2 * time.Second,
		Factory:           transport.NewNNGSocketFactory(),
		Logger:            logging.NewNopLogger(),
	})
	require.NoError(t, err)
	rec := &recorder{}
	ch.SetReceiver(rec)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Connect(ctx))
	t.Cleanup(func() { ch.Close() })
	return ch, rec
}

func TestNNGChannelFormsAndGrowsView(t *testing.T) {
	a, b, c := nngMember(t, "a"), nngMember(t, "b"), nngMember(t, "c")

	chA, recA := startNNG(t, a)
	assert.Equal(t, []string{"a"}, memberIDs(chA.View()))

	chB, _ := startNNG(t, b, a.Addr)
	chC, recC := startNNG(t, c, b.Addr)

	for _, ch := range []*NNGChannel{chA, chB, chC} {
		require.Eventually(t, func() bool { return ch.View().Size() == 3 }, 3*time.Second, 10*time.Millisecond)
		v := ch.View()
		assert.Equal(t, []string{"a", "b", "c"}, memberIDs(v))
		assert.Equal(t, "a", v.Creator.ID)
	}
	require.Eventually(t, func() bool { return recA.lastView().Size() == 3 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return recC.lastView().Size() == 3 }, time.Second, 10*time.Millisecond)
}

func TestNNGChannelMessaging(t *testing.T) {
	a, b, c := nngMember(t, "a"), nngMember(t, "b"), nngMember(t, "c")
	chA, recA := startNNG(t, a)
	chB, recB := startNNG(t, b, a.Addr)
	chC, recC := startNNG(t, c, a.Addr)
	for _, ch := range []*NNGChannel{chA, chB, chC} {
		require.Eventually(t, func() bool { return ch.View().Size() == 3 }, 3*time.Second, 10*time.Millisecond)
	}
	ctx := context.Background()

	require.NoError(t, chA.Broadcast(ctx, []byte("all")))
	require.NoError(t, chC.Send(ctx, b, []byte("one")))

	require.Eventually(t, func() bool { return len(recB.payloads()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"a:all", "c:one"}, recB.payloads())
	require.Eventually(t, func() bool { return len(recC.payloads()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, recA.payloads(), "broadcast excludes the sender")

	err := chA.Send(ctx, Member{ID: "ghost"}, []byte("x"))
	assert.True(t, errors.Is(err, ErrNotMember))
}

func TestNNGChannelStateTransfer(t *testing.T) {
	a, b := nngMember(t, "a"), nngMember(t, "b")
	_, recA := startNNG(t, a)
	recA.mu.Lock()
	recA.state = []byte("files+accounts")
	recA.mu.Unlock()

	chB, recB := startNNG(t, b, a.Addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, chB.RequestState(ctx, a))
	assert.Equal(t, []byte("files+accounts"), recB.appliedState())

	err := chB.RequestState(ctx, Member{ID: "x"})
	assert.True(t, errors.Is(err, ErrStateUnavailable))
}

func TestNNGChannelCoordinatorFailover(t *testing.T) {
	a, b, c := nngMember(t, "a"), nngMember(t, "b"), nngMember(t, "c")
	chA, _ := startNNG(t, a)
	chB, _ := startNNG(t, b, a.Addr)
	chC, _ := startNNG(t, c, a.Addr)
	for _, ch := range []*NNGChannel{chA, chB, chC} {
		require.Eventually(t, func() bool { return ch.View().Size() == 3 }, 3*time.Second, 10*time.Millisecond)
	}

	require.NoError(t, chA.Close())

	for _, ch := range []*NNGChannel{chB, chC} {
		require.Eventually(t, func() bool {
			v := ch.View()
			return v.Size() == 2 && v.Creator.ID == "b"
		}, 3*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"b", "c"}, memberIDs(ch.View()))
	}
}

func TestNNGChannelRejectsIncompleteConfig(t *testing.T) {
	_, err := NewNNGChannel(NNGConfig{Name: "test"})
	assert.Error(t, err)
}

func TestDecodeFrameValidation(t *testing.T) {
	_, err := decodeFrame([]byte(`{"type":"join"}`))
	assert.Error(t, err)
	_, err = decodeFrame([]byte(`{"type":"view"}`))
	assert.Error(t, err)
	_, err = decodeFrame([]byte(`{"type":"gossip"}`))
	assert.Error(t, err)

	data, err := encodeFrame(frame{Type: frameData, Group: "g", Data: []byte{1, 2}})
	require.NoError(t, err)
	f, err := decodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, f.Data)
	assert.False(t, f.Timestamp.IsZero())
}
