package statetransfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
)

const DefaultTimeout = 10 * time.Second

// MergeResult counts what a merge changed.
type MergeResult struct {
	Files    int
	Accounts int
	Skipped  int
}

// Changed reports whether the merge modified local state.
func (r MergeResult) Changed() bool {
	return r.Files > 0 || r.Accounts > 0
}

// Config configures a Handler.
type Config struct {
	Catalog *storage.Catalog
	Store   accounts.Store
	Timeout time.Duration
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Handler serves and applies state snapshots.
type Handler struct {
	catalog *storage.Catalog
	store   accounts.Store
	timeout time.Duration
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewHandler creates a handler.
func NewHandler(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		timeout: timeout,
		logger:  logging.OrDefault(cfg.Logger).With(logging.Component("statetransfer")),
		metrics: cfg.Metrics,
	}
}

// Capture collects the local state. Files removed while capturing are left out.
func (h *Handler) Capture(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Metadata: h.catalog.Metadata().Snapshot(),
		Files:    make(map[string][]byte),
	}
	for name := range snap.Metadata {
		data, err := h.catalog.Read(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			delete(snap.Metadata, name)
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("capture %s: %w", name, err)
		}
		snap.Files[name] = data
		snap.Metadata[name] = int64(len(data))
	}
	accts, err := h.store.ListAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture accounts: %w", err)
	}
	snap.Accounts = accts
	return snap, nil
}

// Merge adopts files that are missing or differ in length, and accounts
// whose username is unknown locally. Applying the same snapshot twice
// changes nothing the second time.
func (h *Handler) Merge(ctx context.Context, snap Snapshot) (MergeResult, error) {
	var res MergeResult
	meta := h.catalog.Metadata()

	for name, content := range snap.Files {
		size, ok := meta.Get(name)
		if ok && size == int64(len(content)) {
			continue
		}
		if _, err := h.catalog.Write(ctx, name, content); err != nil {
			if errors.Is(err, storage.ErrInvalidName) {
				h.logger.Warn("skipping file with invalid name", logging.File(name))
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("merge %s: %w", name, err)
		}
		res.Files++
	}
	for name := range snap.Metadata {
		if _, ok := snap.Files[name]; !ok {
			h.logger.Warn("metadata entry without content", logging.File(name))
			res.Skipped++
		}
	}

	for _, acct := range snap.Accounts {
		_, err := h.store.FindByUsername(ctx, acct.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, accounts.ErrAccountNotFound) {
			return res, fmt.Errorf("merge account %s: %w", acct.Username, err)
		}
		err = h.store.Save(ctx, acct)
		if errors.Is(err, accounts.ErrAccountExists) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("merge account %s: %w", acct.Username, err)
		}
		res.Accounts++
	}
	return res, nil
}

// GetState writes the local snapshot to w.
func (h *Handler) GetState(w io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	snap, err := h.Capture(ctx)
	if err != nil {
		h.metrics.RecordStateTransfer("send", "error", 0)
		h.logger.Error("capturing state failed", logging.Error(err))
		return err
	}
	cw := &countingWriter{w: w}
	if err := Encode(cw, snap); err != nil {
		h.metrics.RecordStateTransfer("send", "error", cw.n)
		return err
	}
	h.metrics.RecordStateTransfer("send", "ok", cw.n)
	h.logger.Info("state sent",
		logging.Count(len(snap.Files)), logging.Int("accounts", len(snap.Accounts)), logging.Bytes(cw.n))
	return nil
}

// SetState merges a snapshot read from r.
func (h *Handler) SetState(r io.Reader) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	cr := &countingReader{r: r}
	snap, err := Decode(cr)
	if err != nil {
		h.metrics.RecordStateTransfer("receive", "error", cr.n)
		return err
	}
	res, err := h.Merge(ctx, snap)
	if err != nil {
		h.metrics.RecordStateTransfer("receive", "error", cr.n)
		return err
	}
	h.metrics.RecordStateTransfer("receive", "ok", cr.n)
	h.logger.Info("state merged",
		logging.Count(res.Files), logging.Int("accounts", res.Accounts),
		logging.Int("skipped", res.Skipped), logging.Bytes(cr.n))
	return nil
}

// StateRequester is the part of a group channel that pulls state.
type StateRequester interface {
	RequestState(ctx context.Context, from group.Member) error
}

// Pull requests state from a member. Failure is logged and returned; it is
// not retried.
func (h *Handler) Pull(ctx context.Context, ch StateRequester, from group.Member) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	timer := logging.StartTimer(h.logger, "state transfer", logging.Member(from.ID))
	if err := ch.RequestState(ctx, from); err != nil {
		h.metrics.RecordStateTransfer("receive", "unavailable", 0)
		timer.End(logging.WarnLevel, logging.Error(err), logging.String("outcome", "continuing with local copy"))
		return err
	}
	timer.End(logging.InfoLevel)
	return nil
}
