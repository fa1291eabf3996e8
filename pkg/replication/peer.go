package replication

import (
	"context"

	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
)

// HandleUpload applies a peer's write and acknowledges it to the origin.
func (c *Coordinator) HandleUpload(from group.Member, msg protocol.Upload) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	c.expireApplied()
	reply := protocol.ConfirmUpload{OperationID: msg.OperationID, Name: msg.Name, OK: true}
	undo, err := c.catalog.Write(ctx, msg.Name, msg.Content)
	if err != nil {
		c.logger.Error("applying replicated write failed",
			logging.File(msg.Name), logging.OperationID(msg.OperationID),
			logging.Member(from.ID), logging.Error(err))
		reply.OK = false
		reply.Reason = err.Error()
	} else {
		c.mu.Lock()
		c.applied[msg.OperationID] = appliedWrite{
			undo:    undo,
			content: msg.Content,
			expires: c.now().Add(c.undoTTL),
		}
		c.mu.Unlock()
	}

	origin := msg.Origin
	if origin.IsZero() {
		origin = from
	}
	if err := c.sendTo(origin, reply); err != nil {
		c.logger.Warn("upload ack not delivered",
			logging.OperationID(msg.OperationID), logging.Member(origin.ID), logging.Error(err))
	}
}

// HandleRollback reverts a write this node applied for a peer, unless the
// file has been overwritten since.
func (c *Coordinator) HandleRollback(msg protocol.RollbackUpload) {
	c.mu.Lock()
	rec, ok := c.applied[msg.OperationID]
	delete(c.applied, msg.OperationID)
	c.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	c.metrics.RecordRollback("quorum", "peer")
	restored, err := c.catalog.RestoreIf(ctx, rec.undo, rec.content)
	switch {
	case err != nil:
		c.logger.Error("peer rollback failed",
			logging.File(msg.Name), logging.OperationID(msg.OperationID), logging.Error(err))
	case !restored:
		c.logger.Warn("peer rollback skipped, file changed since",
			logging.File(msg.Name), logging.OperationID(msg.OperationID))
	default:
		c.logger.Info("peer rollback applied",
			logging.File(msg.Name), logging.OperationID(msg.OperationID))
	}
}

// HandleDelete removes a file deleted on a peer.
func (c *Coordinator) HandleDelete(from group.Member, msg protocol.Delete) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.catalog.Remove(ctx, msg.Name); err != nil {
		c.logger.Warn("replicated delete not applied",
			logging.File(msg.Name), logging.Member(from.ID), logging.Error(err))
	}
}

// expireApplied drops undo records older than the TTL.
func (c *Coordinator) expireApplied() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rec := range c.applied {
		if now.After(rec.expires) {
			delete(c.applied, id)
		}
	}
}

// AppliedCount returns the number of undo records held for peers.
func (c *Coordinator) AppliedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.applied)
}
