//go:build zmq
// +build zmq

package transport

import (
	"sync"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

func init() {
	Register("zmq", func() SocketFactory { return NewZMQSocketFactory() })
}

// zmqSocket wraps a zmq4 socket. ZeroMQ sockets are not goroutine safe, so
// every call is serialized; callers loop on short receive deadlines.
type zmqSocket struct {
	mu     sync.Mutex
	sock   *zmq.Socket
	closed bool
}

func mapZMQError(err error) error {
	if err == nil {
		return nil
	}
	switch zmq.AsErrno(err) {
	case zmq.Errno(syscall.EAGAIN):
		return ErrTimeout
	case zmq.ETERM, zmq.Errno(syscall.ENOTSOCK):
		return ErrClosed
	}
	return err
}

func (s *zmqSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.sock.SendBytes(data, 0)
	return mapZMQError(err)
}

func (s *zmqSocket) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	data, err := s.sock.RecvBytes(0)
	return data, mapZMQError(err)
}

func (s *zmqSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sock.Close()
}

func (s *zmqSocket) SetRecvDeadline(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock.SetRcvtimeo(d)
}

func (s *zmqSocket) SetSendDeadline(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock.SetSndtimeo(d)
}

func (s *zmqSocket) Listen(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock.Bind(addr)
}

func (s *zmqSocket) Dial(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock.Connect(addr)
}

// ZMQSocketFactory creates ZeroMQ sockets.
type ZMQSocketFactory struct{}

// NewZMQSocketFactory creates a new ZeroMQ socket factory.
func NewZMQSocketFactory() *ZMQSocketFactory {
	return &ZMQSocketFactory{}
}

func (f *ZMQSocketFactory) newSocket(t zmq.Type) (*zmqSocket, error) {
	sock, err := zmq.NewSocket(t)
	if err != nil {
		return nil, err
	}
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (f *ZMQSocketFactory) NewPushSocket() (DialSocket, error) {
	s, err := f.newSocket(zmq.PUSH)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (f *ZMQSocketFactory) NewPullSocket() (ListenSocket, error) {
	s, err := f.newSocket(zmq.PULL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (f *ZMQSocketFactory) NewReqSocket() (DialSocket, error) {
	s, err := f.newSocket(zmq.REQ)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (f *ZMQSocketFactory) NewRepSocket() (ListenSocket, error) {
	s, err := f.newSocket(zmq.REP)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var _ SocketFactory = (*ZMQSocketFactory)(nil)
