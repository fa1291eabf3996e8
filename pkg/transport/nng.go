package transport

import (
	"errors"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

func init() {
	Register("nng", func() SocketFactory { return NewNNGSocketFactory() })
}

// nngSocket wraps a mangos.Socket to implement our Socket interface.
type nngSocket struct {
	sock mangos.Socket
}

func mapNNGError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mangos.ErrRecvTimeout), errors.Is(err, mangos.ErrSendTimeout):
		return ErrTimeout
	case errors.Is(err, mangos.ErrClosed):
		return ErrClosed
	default:
		return err
	}
}

func (s *nngSocket) Send(data []byte) error {
	return mapNNGError(s.sock.Send(data))
}

func (s *nngSocket) Recv() ([]byte, error) {
	data, err := s.sock.Recv()
	return data, mapNNGError(err)
}

func (s *nngSocket) Close() error {
	return mapNNGError(s.sock.Close())
}

func (s *nngSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

func (s *nngSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionSendDeadline, d)
}

func (s *nngSocket) Listen(addr string) error {
	return s.sock.Listen(addr)
}

// Dial connects in the background so an absent peer does not fail the call.
func (s *nngSocket) Dial(addr string) error {
	return s.sock.DialOptions(addr, map[string]interface{}{
		mangos.OptionDialAsynch: true,
	})
}

// NNGSocketFactory creates NNG/mangos sockets.
type NNGSocketFactory struct{}

// NewNNGSocketFactory creates a new NNG socket factory.
func NewNNGSocketFactory() *NNGSocketFactory {
	return &NNGSocketFactory{}
}

func (f *NNGSocketFactory) NewPushSocket() (DialSocket, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

func (f *NNGSocketFactory) NewPullSocket() (ListenSocket, error) {
	sock, err := pull.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

func (f *NNGSocketFactory) NewReqSocket() (DialSocket, error) {
	sock, err := req.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

func (f *NNGSocketFactory) NewRepSocket() (ListenSocket, error) {
	sock, err := rep.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}

// Ensure NNGSocketFactory implements SocketFactory
var _ SocketFactory = (*NNGSocketFactory)(nil)
