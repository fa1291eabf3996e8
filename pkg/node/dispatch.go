package node

import (
	"io"

	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
)

// dispatcher is the cluster channel receiver. It runs on the channel's
// delivery goroutine.
type dispatcher struct {
	n *Node
}

var _ group.Receiver = dispatcher{}

func (d dispatcher) Receive(from group.Member, payload []byte) {
	msg, err := protocol.Decode(payload)
	if err != nil {
		d.n.logger.Warn("dropping malformed message", logging.Member(from.ID), logging.Error(err))
		return
	}

	switch m := msg.(type) {
	case protocol.Upload:
		d.n.replication.HandleUpload(from, m)
	case protocol.ConfirmUpload:
		d.n.replication.HandleConfirm(from, m)
	case protocol.RollbackUpload:
		d.n.replication.HandleRollback(m)
	case protocol.Delete:
		d.n.replication.HandleDelete(from, m)
	case protocol.LockRequest:
		d.n.locks.HandleRequest(m)
	case protocol.LockRelease:
		d.n.locks.HandleRelease(m)
	case protocol.LockGranted:
		d.n.locks.HandleGranted(m)
	case protocol.SaveAccount:
		d.n.txn.HandleSaveAccount(from, m)
	case protocol.RollbackAccount:
		d.n.txn.HandleRollback(m)
	case protocol.ConfirmTransaction:
		d.n.txn.HandleConfirm(from, m)
	default:
		d.n.logger.Warn("dropping unhandled message",
			logging.Member(from.ID), logging.String("type", msg.Type().String()))
	}
}

func (d dispatcher) ViewAccepted(v group.View) {
	d.n.tracker.Apply(v)
}

func (d dispatcher) GetState(w io.Writer) error {
	return d.n.state.GetState(w)
}

func (d dispatcher) SetState(r io.Reader) error {
	return d.n.state.SetState(r)
}
