package group

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
)

// Hub is an in-process group fabric. Channels created from the same Hub share
// views and deliver to each other through per-channel mailboxes. Isolate cuts
// a member off without removing it from the view, which is how an unreachable
// but not yet suspected member looks to its peers.
type Hub struct {
	mu       sync.Mutex
	groups   map[string]*hubGroup
	isolated map[string]bool
	logger   logging.Logger
}

type hubGroup struct {
	viewID  uint64
	members []*HubChannel
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		groups:   make(map[string]*hubGroup),
		isolated: make(map[string]bool),
		logger:   logging.OrDefault(logger).With(logging.Component("hub")),
	}
}

// Channel creates an unconnected channel for self in the named group.
func (h *Hub) Channel(name string, self Member) *HubChannel {
	return &HubChannel{hub: h, name: name, self: self}
}

// Isolate makes every frame to or from the member with id disappear.
func (h *Hub) Isolate(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isolated[id] = true
}

// Heal reverses Isolate.
func (h *Hub) Heal(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.isolated, id)
}

func (h *Hub) reachable(a, b string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.isolated[a] && !h.isolated[b]
}

func (h *Hub) lookup(name, id string) *HubChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	g := h.groups[name]
	if g == nil {
		return nil
	}
	for _, c := range g.members {
		if c.self.ID == id {
			return c
		}
	}
	return nil
}

func (h *Hub) join(c *HubChannel) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	g := h.groups[c.name]
	if g == nil {
		g = &hubGroup{}
		h.groups[c.name] = g
	}
	for _, m := range g.members {
		if m.self.ID == c.self.ID {
			return fmt.Errorf("group %s: member id %q already joined", c.name, c.self.ID)
		}
	}
	g.members = append(g.members, c)
	h.installLocked(c.name, g, c.self)
	return nil
}

func (h *Hub) leave(c *HubChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g := h.groups[c.name]
	if g == nil {
		return
	}
	for i, m := range g.members {
		if m == c {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	if len(g.members) == 0 {
		delete(h.groups, c.name)
		return
	}
	h.installLocked(c.name, g, g.members[0].self)
}

// installLocked builds the next view and hands it to every member. The
// creator is the oldest member.
func (h *Hub) installLocked(name string, g *hubGroup, trigger Member) {
	g.viewID++
	view := View{ID: g.viewID, Creator: g.members[0].self}
	for _, m := range g.members {
		view.Members = append(view.Members, m.self)
	}
	h.logger.Debug("installing view",
		logging.String("group", name),
		logging.ViewID(view.ID),
		logging.String("view", view.String()),
		logging.Member(trigger.ID))
	for _, m := range g.members {
		m.installView(view.Clone())
	}
}

// HubChannel is a Channel backed by a Hub.
type HubChannel struct {
	hub  *Hub
	name string
	self Member

	mu        sync.RWMutex
	receiver  Receiver
	view      View
	mb        *mailbox
	connected bool
	closed    bool
}

var _ Channel = (*HubChannel)(nil)

func (c *HubChannel) Name() string    { return c.name }
func (c *HubChannel) Address() Member { return c.self }

func (c *HubChannel) SetReceiver(r Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiver = r
}

func (c *HubChannel) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Clone()
}

func (c *HubChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mb = newMailbox()
	c.connected = true
	c.mu.Unlock()

	err := ctx.Err()
	if err == nil {
		err = c.hub.join(c)
	}
	if err != nil {
		c.mu.Lock()
		c.connected = false
		mb := c.mb
		c.mb = nil
		c.mu.Unlock()
		mb.close()
		return err
	}
	return nil
}

func (c *HubChannel) installView(v View) {
	c.mu.Lock()
	c.view = v
	mb := c.mb
	c.mu.Unlock()

	mb.put(func() {
		if r := c.currentReceiver(); r != nil {
			r.ViewAccepted(v.Clone())
		}
	})
}

func (c *HubChannel) currentReceiver() Receiver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.receiver
}

func (c *HubChannel) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if !c.connected {
		return ErrNotConnected
	}
	return nil
}

func (c *HubChannel) deliver(from Member, payload []byte) {
	data := append([]byte(nil), payload...)
	c.mu.RLock()
	mb, closed := c.mb, c.closed
	c.mu.RUnlock()
	if closed || mb == nil {
		return
	}
	mb.put(func() {
		if r := c.currentReceiver(); r != nil {
			r.Receive(from, data)
		}
	})
}

func (c *HubChannel) Send(ctx context.Context, to Member, payload []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	target := c.hub.lookup(c.name, to.ID)
	if target == nil {
		return fmt.Errorf("%w: %s", ErrNotMember, to.ID)
	}
	if !c.hub.reachable(c.self.ID, to.ID) {
		return fmt.Errorf("%w: %s", ErrUnreachable, to.ID)
	}
	target.deliver(c.self, payload)
	return nil
}

func (c *HubChannel) Broadcast(ctx context.Context, payload []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range c.View().Without(c.self) {
		if !c.hub.reachable(c.self.ID, m.ID) {
			continue
		}
		if target := c.hub.lookup(c.name, m.ID); target != nil {
			target.deliver(c.self, payload)
		}
	}
	return nil
}

func (c *HubChannel) RequestState(ctx context.Context, from Member) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	source := c.hub.lookup(c.name, from.ID)
	if source == nil {
		return fmt.Errorf("%w: %s", ErrNotMember, from.ID)
	}
	if !c.hub.reachable(c.self.ID, from.ID) {
		return fmt.Errorf("%w: %s", ErrUnreachable, from.ID)
	}
	provider := source.currentReceiver()
	if provider == nil {
		return fmt.Errorf("%w: %s has no receiver", ErrStateUnavailable, from.ID)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var buf bytes.Buffer
		err := provider.GetState(&buf)
		done <- result{data: buf.Bytes(), err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStateUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("%w: %v", ErrStateUnavailable, res.err)
		}
		r := c.currentReceiver()
		if r == nil {
			return nil
		}
		return r.SetState(bytes.NewReader(res.data))
	}
}

// Close leaves the group. It must not be called from a delivery callback.
func (c *HubChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	wasConnected := c.connected
	c.closed = true
	mb := c.mb
	c.mu.Unlock()

	if wasConnected {
		c.hub.leave(c)
		mb.close()
	}
	return nil
}
