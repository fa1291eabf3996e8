// Package gateway spreads client operations over the backends in the RPC
// group view, round-robin, retrying transport failures on the next backend.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
)

const DefaultAttempts = 3

// Backend is the operation set served by a backend node.
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	ListFiles(ctx context.Context) ([]string, error)
	Upload(ctx context.Context, name string, data []byte) error
	EditFile(ctx context.Context, name string, data []byte) error
	Download(ctx context.Context, name string) ([]byte, error)
	DeleteFile(ctx context.Context, name string) error
	CreateAccount(ctx context.Context, username, password string) error
	GetSystemHash(ctx context.Context) (string, error)
}

// BackendFactory builds a client for a member.
type BackendFactory func(m group.Member) Backend

// MemberSource lists the other members of the RPC group, in view order.
type MemberSource interface {
	CurrentMembers() []group.Member
}

// Config configures a Dispatcher.
type Config struct {
	Members  MemberSource
	Factory  BackendFactory
	Attempts int
	Logger   logging.Logger
	Metrics  *metrics.Registry
}

// Dispatcher selects a backend per call.
type Dispatcher struct {
	members  MemberSource
	factory  BackendFactory
	attempts int
	logger   logging.Logger
	metrics  *metrics.Registry
	cursor   atomic.Uint64

	mu      sync.Mutex
	clients map[string]cachedBackend
}

type cachedBackend struct {
	member  group.Member
	backend Backend
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Dispatcher{
		members:  cfg.Members,
		factory:  cfg.Factory,
		attempts: attempts,
		logger:   logging.OrDefault(cfg.Logger).With(logging.Component("gateway")),
		metrics:  cfg.Metrics,
		clients:  make(map[string]cachedBackend),
	}
}

// ViewChanged resets the cursor and forgets clients of departed members.
func (d *Dispatcher) ViewChanged(c cluster.Change) {
	d.cursor.Store(0)
	d.mu.Lock()
	for _, m := range c.Left {
		delete(d.clients, m.ID)
	}
	d.mu.Unlock()
	backends := d.Backends()
	d.metrics.SetGatewayBackends(len(backends))
	d.logger.Info("backends updated", logging.Count(len(backends)), logging.ViewID(c.Current.ID))
}

// Backends returns the members that serve the RPC surface, in view order.
func (d *Dispatcher) Backends() []group.Member {
	all := d.members.CurrentMembers()
	out := all[:0:0]
	for _, m := range all {
		if m.API != "" {
			out = append(out, m)
		}
	}
	return out
}

// next picks the backend for one attempt from a fresh member list.
func (d *Dispatcher) next() (group.Member, Backend, error) {
	backends := d.Backends()
	if len(backends) == 0 {
		return group.Member{}, nil, ErrNoBackendAvailable
	}
	i := d.cursor.Add(1) - 1
	m := backends[i%uint64(len(backends))]
	return m, d.client(m), nil
}

func (d *Dispatcher) client(m group.Member) Backend {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[m.ID]; ok && c.member == m {
		return c.backend
	}
	b := d.factory(m)
	d.clients[m.ID] = cachedBackend{member: m, backend: b}
	return b
}

// do runs fn against successive backends until it succeeds, fails with a
// non-transport error, or the attempts run out.
func (d *Dispatcher) do(ctx context.Context, op string, fn func(Backend) error) (err error) {
	defer func() {
		d.metrics.RecordGatewayRequest(op, requestResult(err))
	}()

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		m, b, err := d.next()
		if err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w: %s after %d attempts, then %w: %w", ErrRetriesExhausted, op, attempt-1, err, lastErr)
			}
			return err
		}
		err = fn(b)
		if err == nil {
			d.metrics.RecordGatewayAttempt("ok")
			return nil
		}
		if !errors.Is(err, ErrBackendUnreachable) {
			d.metrics.RecordGatewayAttempt("rejected")
			return err
		}
		d.metrics.RecordGatewayAttempt("unreachable")
		d.logger.Warn("backend attempt failed",
			logging.Operation(op), logging.Member(m.ID),
			logging.Int("attempt", attempt), logging.Error(err))
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, op, d.attempts, lastErr)
}

func requestResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoBackendAvailable):
		return "no_backend"
	case errors.Is(err, ErrRetriesExhausted):
		return "exhausted"
	default:
		return "error"
	}
}
