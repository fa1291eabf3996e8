package txn

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
)

// HandleSaveAccount stores a peer's account unless the username is taken,
// and acknowledges to the origin.
func (c *Coordinator) HandleSaveAccount(from group.Member, msg protocol.SaveAccount) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	c.expireApplied()
	reply := protocol.ConfirmTransaction{TxID: msg.TxID, OK: true}
	_, err := c.store.FindByUsername(ctx, msg.Account.Username)
	switch {
	case err == nil:
		reply.OK, reply.Duplicate = false, true
	case !errors.Is(err, accounts.ErrAccountNotFound):
		reply.OK, reply.Reason = false, err.Error()
	default:
		err = c.store.Save(ctx, msg.Account)
		switch {
		case errors.Is(err, accounts.ErrAccountExists):
			reply.OK, reply.Duplicate = false, true
		case err != nil:
			reply.OK, reply.Reason = false, err.Error()
		default:
			c.mu.Lock()
			c.applied[msg.TxID] = appliedTx{username: msg.Account.Username, expires: c.now().Add(c.undoTTL)}
			c.mu.Unlock()
		}
	}
	if !reply.OK {
		c.logger.Warn("rejecting replicated account",
			logging.TxID(msg.TxID), logging.String("username", msg.Account.Username),
			logging.Bool("duplicate", reply.Duplicate), logging.String("reason", reply.Reason))
	}

	origin := msg.Origin
	if origin.IsZero() {
		origin = from
	}
	if err := c.sender.Send(ctx, origin, reply); err != nil {
		c.logger.Warn("transaction ack not delivered",
			logging.TxID(msg.TxID), logging.Member(origin.ID), logging.Error(err))
	}
}

// HandleRollback deletes the account if this node stored it under the
// same transaction.
func (c *Coordinator) HandleRollback(msg protocol.RollbackAccount) {
	c.mu.Lock()
	rec, ok := c.applied[msg.TxID]
	delete(c.applied, msg.TxID)
	c.mu.Unlock()
	if !ok || rec.username != msg.Username {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	c.metrics.RecordRollback("full", "peer")
	if err := c.store.Delete(ctx, msg.Username); err != nil && !errors.Is(err, accounts.ErrAccountNotFound) {
		c.logger.Error("peer account rollback failed", logging.TxID(msg.TxID), logging.Error(err))
		return
	}
	c.logger.Info("peer account rollback applied",
		logging.TxID(msg.TxID), logging.String("username", msg.Username))
}

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
