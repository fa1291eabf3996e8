// Package transport abstracts the message sockets used by group channels.
// The default implementation is mangos (NNG); ZeroMQ is available when built
// with the zmq tag.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Send/Recv when the configured deadline passes.
	ErrTimeout = errors.New("transport: deadline exceeded")

	// ErrClosed is returned by operations on a closed socket.
	ErrClosed = errors.New("transport: socket closed")

	// ErrUnknownTransport is returned by New for an unregistered name.
	ErrUnknownTransport = errors.New("transport: unknown transport")
)

// Socket represents a messaging socket that can send and receive frames.
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket is a socket that binds to an address.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket is a socket that connects to a remote address. Dialing does not
// wait for the peer; frames are queued until the connection comes up.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SocketFactory creates sockets for the two patterns a group channel needs:
// push/pull for one-way frames and req/rep for state exchange.
type SocketFactory interface {
	NewPushSocket() (DialSocket, error)
	NewPullSocket() (ListenSocket, error)
	NewReqSocket() (DialSocket, error)
	NewRepSocket() (ListenSocket, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() SocketFactory{}
)

// Register makes a factory constructor available to New under name.
func Register(name string, ctor func() SocketFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New returns the factory registered under name ("nng", or "zmq" when built with the zmq tag).
func New(name string) (SocketFactory, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownTransport, name, Available())
	}
	return ctor(), nil
}

// Available lists registered transport names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
