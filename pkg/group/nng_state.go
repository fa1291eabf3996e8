package group

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/transport"
)

// stateLoop answers state requests on the rep socket, one at a time.
func (c *NNGChannel) stateLoop(sock transport.ListenSocket) {
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
			c.logger.Warn("state receive failed", logging.Error(err))
			continue
		}

		reply := c.serveState(data)
		if err := sock.Send(reply); err != nil {
			c.logger.Warn("state reply failed", logging.Error(err))
		}
	}
}

func (c *NNGChannel) serveState(data []byte) []byte {
	var req stateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return append([]byte{stateError}, "malformed state request"...)
	}
	if req.Group != c.cfg.Name {
		return append([]byte{stateError}, "wrong group"...)
	}
	r := c.currentReceiver()
	if r == nil {
		return append([]byte{stateError}, "no receiver"...)
	}

	var buf bytes.Buffer
	buf.WriteByte(stateOK)
	if err := r.GetState(&buf); err != nil {
		c.logger.Error("state capture failed", logging.String("requester", req.From.ID), logging.Error(err))
		return append([]byte{stateError}, err.Error()...)
	}
	c.logger.Info("state served", logging.String("requester", req.From.ID), logging.Bytes(buf.Len()-1))
	return buf.Bytes()
}

func (c *NNGChannel) RequestState(ctx context.Context, from Member) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if from.StateAddr == "" {
		return fmt.Errorf("%w: %s serves no state endpoint", ErrStateUnavailable, from.ID)
	}

	window := defaultStateWindow
	if dl, ok := ctx.Deadline(); ok {
		window = time.Until(dl)
		if window <= 0 {
			return fmt.Errorf("%w: %v", ErrStateUnavailable, context.DeadlineExceeded)
		}
	}

	sock, err := c.cfg.Factory.NewReqSocket()
	if err != nil {
		return fmt.Errorf("create state request socket: %w", err)
	}
	defer sock.Close()
	if err := sock.SetSendDeadline(window); err != nil {
		return err
	}
	if err := sock.SetRecvDeadline(window); err != nil {
		return err
	}
	if err := sock.Dial(from.StateAddr); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, from.ID, err)
	}

	req, err := json.Marshal(stateRequest{Group: c.cfg.Name, From: c.cfg.Self})
	if err != nil {
		return err
	}
	if err := sock.Send(req); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStateUnavailable, from.ID, err)
	}
	reply, err := sock.Recv()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStateUnavailable, from.ID, err)
	}
	if len(reply) == 0 || reply[0] != stateOK {
		msg := "empty reply"
		if len(reply) > 1 {
			msg = string(reply[1:])
		}
		return fmt.Errorf("%w: %s: %s", ErrStateUnavailable, from.ID, msg)
	}

	r := c.currentReceiver()
	if r == nil {
		return nil
	}
	return r.SetState(bytes.NewReader(reply[1:]))
}
