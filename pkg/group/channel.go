// Package group provides the group communication primitive the cluster is
// built on: ordered view notifications, unicast and broadcast delivery, and a
// pull-based state exchange for joining members.
package group

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotConnected is returned when the channel has not joined its group.
	ErrNotConnected = errors.New("group: channel not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("group: channel closed")

	// ErrUnreachable is returned when a member cannot be reached.
	ErrUnreachable = errors.New("group: member unreachable")

	// ErrNotMember is returned when addressing a member outside the current view.
	ErrNotMember = errors.New("group: not a member of the current view")

	// ErrStateUnavailable is returned when a state request cannot be served.
	ErrStateUnavailable = errors.New("group: state unavailable")
)

// Receiver consumes what a channel delivers. Receive and ViewAccepted are
// called from one delivery goroutine per channel, in arrival order; they must
// not block for long. GetState and SetState run on their own goroutines.
type Receiver interface {
	Receive(from Member, payload []byte)
	ViewAccepted(view View)
	GetState(w io.Writer) error
	SetState(r io.Reader) error
}

// Channel is a connection to one named group.
type Channel interface {
	// Connect joins the group and returns once the first view is installed.
	Connect(ctx context.Context) error

	// SetReceiver installs the delivery target. Call before Connect.
	SetReceiver(r Receiver)

	// Name returns the group name.
	Name() string

	// Address returns the local member.
	Address() Member

	// View returns a copy of the current view.
	View() View

	// Send delivers payload to one member.
	Send(ctx context.Context, to Member, payload []byte) error

	// Broadcast delivers payload to every member of the current view except the sender.
	Broadcast(ctx context.Context, payload []byte) error

	// RequestState pulls the state of from and hands it to the local
	// receiver's SetState. The call is bounded by ctx.
	RequestState(ctx context.Context, from Member) error

	// Close leaves the group.
	Close() error
}

// ViewListener is a Receiver for members that only track views, such as the
// gateway in the RPC group.
type ViewListener func(View)

func (f ViewListener) Receive(Member, []byte) {}

func (f ViewListener) ViewAccepted(v View) { f(v) }

func (f ViewListener) GetState(io.Writer) error { return nil }

func (f ViewListener) SetState(io.Reader) error { return nil }
