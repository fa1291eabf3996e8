package group

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/transport"
)

const (
	recvPoll           = 100 * time.Millisecond
	minSendDeadline    = 100 * time.Millisecond
	leaveFlush         = 50 * time.Millisecond
	defaultStateWindow = 10 * time.Second
)

// NNGConfig configures an NNGChannel.
type NNGConfig struct {
	Name              string
	Self              Member
	Seeds             []string
	HeartbeatInterval time.Duration
	FailureTimeout    time.Duration
	JoinTimeout       time.Duration
	Factory           transport.SocketFactory
	Logger            logging.Logger
}

// NNGChannel is a Channel over push/pull sockets for frames and req/rep
// sockets for state exchange. The oldest member of the view is the
// coordinator: it admits joiners, removes leavers and suspects, and
// distributes each new view. Members heartbeat each other; when members ahead
// of a node in the view go silent past FailureTimeout, the first live member
// takes over as coordinator.
type NNGChannel struct {
	cfg          NNGConfig
	logger       logging.Logger
	sendDeadline time.Duration

	// viewMu serializes building, installing and publishing successor views
	// so two of them never share an ID. Taken before mu.
	viewMu sync.Mutex

	mu       sync.RWMutex
	receiver Receiver
	view     View
	lastSeen map[string]time.Time
	peers    map[string]transport.DialSocket

	joined     chan struct{}
	joinedOnce sync.Once

	resources *transport.ResourceCleanup
	mb        *mailbox
	running   atomic.Bool
	closed    atomic.Bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

var _ Channel = (*NNGChannel)(nil)

// NewNNGChannel creates an unconnected channel.
func NewNNGChannel(cfg NNGConfig) (*NNGChannel, error) {
	if cfg.Name == "" || cfg.Self.ID == "" || cfg.Self.Addr == "" {
		return nil, errors.New("group: name, member id and member address are required")
	}
	if cfg.Factory == nil {
		cfg.Factory = transport.NewNNGSocketFactory()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}
	if cfg.FailureTimeout <= cfg.HeartbeatInterval {
		cfg.FailureTimeout = 5 * cfg.HeartbeatInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 3 * time.Second
	}
	logger := logging.OrDefault(cfg.Logger).With(
		logging.Component("group"),
		logging.String("group", cfg.Name),
		logging.Member(cfg.Self.ID),
	)
	return &NNGChannel{
		cfg:          cfg,
		logger:       logger,
		sendDeadline: max(cfg.HeartbeatInterval, minSendDeadline),
		lastSeen:     make(map[string]time.Time),
		peers:        make(map[string]transport.DialSocket),
		joined:       make(chan struct{}),
		stop:         make(chan struct{}),
	}, nil
}

func (c *NNGChannel) Name() string    { return c.cfg.Name }
func (c *NNGChannel) Address() Member { return c.cfg.Self }

func (c *NNGChannel) SetReceiver(r Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiver = r
}

func (c *NNGChannel) currentReceiver() Receiver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.receiver
}

func (c *NNGChannel) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Clone()
}

// Connect binds the inbound and state endpoints, joins through the seeds and
// waits for the first view. With no reachable seed the node forms a view of
// its own.
func (c *NNGChannel) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}

	cleanup := transport.NewResourceCleanup(c.logger)
	defer cleanup.Cleanup()

	inbound, err := c.cfg.Factory.NewPullSocket()
	if err != nil {
		c.running.Store(false)
		return fmt.Errorf("create inbound socket: %w", err)
	}
	cleanup.Add(inbound, "inbound")
	if err := inbound.Listen(c.cfg.Self.Addr); err != nil {
		c.running.Store(false)
		return fmt.Errorf("listen on %s: %w", c.cfg.Self.Addr, err)
	}
	if err := inbound.SetRecvDeadline(recvPoll); err != nil {
		c.running.Store(false)
		return fmt.Errorf("set inbound deadline: %w", err)
	}

	var stateSock transport.ListenSocket
	if c.cfg.Self.StateAddr != "" {
		stateSock, err = c.cfg.Factory.NewRepSocket()
		if err != nil {
			c.running.Store(false)
			return fmt.Errorf("create state socket: %w", err)
		}
		cleanup.Add(stateSock, "state")
		if err := stateSock.Listen(c.cfg.Self.StateAddr); err != nil {
			c.running.Store(false)
			return fmt.Errorf("listen on %s: %w", c.cfg.Self.StateAddr, err)
		}
		if err := stateSock.SetRecvDeadline(recvPoll); err != nil {
			c.running.Store(false)
			return fmt.Errorf("set state deadline: %w", err)
		}
	}

	c.resources = transport.NewResourceCleanup(c.logger)
	c.resources.Add(inbound, "inbound")
	if stateSock != nil {
		c.resources.Add(stateSock, "state")
	}
	cleanup.Clear()

	c.mb = newMailbox()
	c.wg.Add(1)
	go c.recvLoop(inbound)
	if stateSock != nil {
		c.wg.Add(1)
		go c.stateLoop(stateSock)
	}

	if err := c.join(ctx); err != nil {
		_ = c.Close()
		return err
	}

	c.wg.Add(1)
	go c.heartbeatLoop()
	return nil
}

func (c *NNGChannel) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.running.Load() {
		return ErrNotConnected
	}
	return nil
}

// peer returns the cached push socket for addr, dialing on first use.
func (c *NNGChannel) peer(addr string) (transport.DialSocket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.peers[addr]; ok {
		return s, nil
	}
	s, err := c.cfg.Factory.NewPushSocket()
	if err != nil {
		return nil, err
	}
	if err := s.SetSendDeadline(c.sendDeadline); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Dial(addr); err != nil {
		s.Close()
		return nil, err
	}
	c.peers[addr] = s
	return s, nil
}

func (c *NNGChannel) dropPeer(addr string) {
	c.mu.Lock()
	s, ok := c.peers[addr]
	delete(c.peers, addr)
	c.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (c *NNGChannel) sendFrame(addr string, f frame) error {
	f.Group = c.cfg.Name
	f.From = c.cfg.Self
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	s, err := c.peer(addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
	}
	if err := s.Send(data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
	}
	return nil
}

func (c *NNGChannel) Send(ctx context.Context, to Member, payload []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	view := c.View()
	idx := view.IndexOf(to.ID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotMember, to.ID)
	}
	if to.ID == c.cfg.Self.ID {
		c.deliver(c.cfg.Self, payload)
		return nil
	}
	return c.sendFrame(view.Members[idx].Addr, frame{Type: frameData, Data: payload})
}

func (c *NNGChannel) Broadcast(ctx context.Context, payload []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range c.View().Without(c.cfg.Self) {
		if err := c.sendFrame(m.Addr, frame{Type: frameData, Data: payload}); err != nil {
			c.logger.Warn("broadcast frame dropped", logging.String("to", m.ID), logging.Error(err))
		}
	}
	return nil
}

func (c *NNGChannel) deliver(from Member, payload []byte) {
	data := append([]byte(nil), payload...)
	c.mb.put(func() {
		if r := c.currentReceiver(); r != nil {
			r.Receive(from, data)
		}
	})
}

func (c *NNGChannel) recvLoop(sock transport.ListenSocket) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		data, err := sock.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			if errors.Is(err, transport.ErrClosed) {
				return
			}
			c.logger.Warn("inbound receive failed", logging.Error(err))
			continue
		}

		f, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", logging.Error(err))
			continue
		}
		if f.Group != c.cfg.Name {
			c.logger.Debug("dropping frame for another group", logging.String("frame_group", f.Group))
			continue
		}
		c.handleFrame(f)
	}
}

func (c *NNGChannel) handleFrame(f frame) {
	c.markSeen(f.From.ID)
	switch f.Type {
	case frameData:
		c.deliver(f.From, f.Data)
	case frameHeartbeat:
	case frameJoin:
		c.handleJoin(*f.Subject)
	case frameLeave:
		c.handleLeave(*f.Subject)
	case frameView:
		c.handleView(*f.View)
	}
}

func (c *NNGChannel) markSeen(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lastSeen[id]; ok {
		c.lastSeen[id] = time.Now()
	}
}

// Close leaves the group and releases every socket.
func (c *NNGChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !c.running.Load() {
		return nil
	}

	c.leave()
	close(c.stop)
	c.wg.Wait()

	err := c.resources.CloseAll()
	c.mu.Lock()
	peers := c.peers
	c.peers = make(map[string]transport.DialSocket)
	c.mu.Unlock()
	for _, s := range peers {
		s.Close()
	}
	c.mb.close()
	return err
}
