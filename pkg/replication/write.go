package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-filestore/pkg/lock"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/protocol"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
)

// Upload writes data under name on a quorum of members.
func (c *Coordinator) Upload(ctx context.Context, name string, data []byte) error {
	return c.ReplicateWrite(ctx, "upload", name, func(context.Context) ([]byte, error) {
		return data, nil
	})
}

// Edit appends data to an existing file and replicates the combined content.
// Editing an absent file fails with storage.ErrNotFound.
func (c *Coordinator) Edit(ctx context.Context, name string, data []byte) error {
	return c.ReplicateWrite(ctx, "edit", name, func(ctx context.Context) ([]byte, error) {
		current, err := c.catalog.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		combined := make([]byte, 0, len(current)+len(data))
		combined = append(combined, current...)
		return append(combined, data...), nil
	})
}

// ReplicateWrite runs one quorum write of name. content is called under the
// distributed lock and returns the full new file content.
func (c *Coordinator) ReplicateWrite(ctx context.Context, op, name string,
	content func(context.Context) ([]byte, error)) (err error) {
	if err := storage.CheckName(name); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		c.metrics.RecordWrite(op, writeResult(err), time.Since(start))
	}()

	l, err := c.locks.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer c.release(l)

	data, err := content(ctx)
	if err != nil {
		return err
	}
	undo, err := c.catalog.Write(ctx, name, data)
	if err != nil {
		c.logger.Error("local write failed, not replicating",
			logging.Operation(op), logging.File(name), logging.Error(err))
		return err
	}

	self := c.members.Self()
	opID := uuid.NewString()
	total := c.members.TotalMembers()
	needed := QuorumSize(total)
	p := c.register(opID, needed)
	defer c.forget(opID)

	log := c.logger.With(logging.Operation(op), logging.File(name), logging.OperationID(opID))
	if needed > 1 {
		msg := protocol.Upload{OperationID: opID, Name: name, Content: data, Origin: self}
		if err := c.broadcast(msg); err != nil {
			c.mu.Lock()
			p.finish(fmt.Errorf("%w: broadcast: %v", ErrQuorumNotReached, err))
			c.mu.Unlock()
		}
	}

	timer := time.NewTimer(c.quorumTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	case <-ctx.Done():
	}

	c.mu.Lock()
	committed := p.closed && p.err == nil
	acks := len(p.acks)
	cause := p.err
	c.mu.Unlock()

	if committed {
		log.Info("write committed", logging.Count(acks), logging.Int("quorum", needed))
		return nil
	}

	if cause == nil {
		cause = fmt.Errorf("%w: %d of %d acks for %s within %v",
			ErrQuorumNotReached, acks, needed, name, c.quorumTimeout)
	}
	log.Warn("write rolled back", logging.Count(acks), logging.Int("quorum", needed), logging.Error(cause))
	c.rollback(name, opID, undo)
	return cause
}

// rollback restores the local pre-image and tells peers to do the same.
func (c *Coordinator) rollback(name, opID string, undo storage.Undo) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	c.metrics.RecordRollback("quorum", "origin")
	if err := c.catalog.Restore(ctx, undo); err != nil {
		c.logger.Error("local rollback failed",
			logging.File(name), logging.OperationID(opID), logging.Error(err))
	}
	if err := c.sender.Broadcast(ctx, protocol.RollbackUpload{OperationID: opID, Name: name}); err != nil {
		c.logger.Error("rollback broadcast failed",
			logging.File(name), logging.OperationID(opID), logging.Error(err))
	}
}

func (c *Coordinator) release(l *lock.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := l.Release(ctx); err != nil {
		c.logger.Warn("lock release failed", logging.Error(err))
	}
}

// Delete removes name locally and broadcasts the removal without waiting for
// acknowledgements.
func (c *Coordinator) Delete(ctx context.Context, name string) (err error) {
	if err := storage.CheckName(name); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		c.metrics.RecordWrite("delete", writeResult(err), time.Since(start))
	}()

	l, err := c.locks.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer c.release(l)

	if err := c.catalog.Remove(ctx, name); err != nil {
		return err
	}
	opID := uuid.NewString()
	if err := c.broadcast(protocol.Delete{OperationID: opID, Name: name}); err != nil {
		c.logger.Warn("delete broadcast failed",
			logging.File(name), logging.OperationID(opID), logging.Error(err))
	}
	return nil
}

func writeResult(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrQuorumNotReached):
		return "rolled_back"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	default:
		return "failed"
	}
}
