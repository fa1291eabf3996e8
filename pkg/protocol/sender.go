package protocol

import (
	"context"

	"github.com/dd0wney/cluso-filestore/pkg/group"
)

// Sender delivers cluster messages. Coordinators depend on this rather than
// on a group.Channel so they can be driven directly in tests.
type Sender interface {
	Send(ctx context.Context, to group.Member, msg Message) error
	Broadcast(ctx context.Context, msg Message) error
}

// ChannelSender encodes messages onto a group channel.
type ChannelSender struct {
	ch group.Channel
}

// NewChannelSender creates a Sender over ch.
func NewChannelSender(ch group.Channel) *ChannelSender {
	return &ChannelSender{ch: ch}
}

func (s *ChannelSender) Send(ctx context.Context, to group.Member, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return s.ch.Send(ctx, to, data)
}

func (s *ChannelSender) Broadcast(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return s.ch.Broadcast(ctx, data)
}

var _ Sender = (*ChannelSender)(nil)
