package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-filestore/pkg/cluster"
	"github.com/dd0wney/cluso-filestore/pkg/group"
	"github.com/dd0wney/cluso-filestore/pkg/logging"
	"github.com/dd0wney/cluso-filestore/pkg/metrics"
	"github.com/dd0wney/cluso-filestore/pkg/storage"
)

// fakeBackend answers GetSystemHash with its own id and records calls.
type fakeBackend struct {
	id   string
	log  *callLog
	fail error
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, id)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (f *fakeBackend) call() error {
	f.log.add(f.id)
	return f.fail
}

func (f *fakeBackend) Login(context.Context, string, string) (string, error) {
	return "token-" + f.id, f.call()
}
func (f *fakeBackend) ListFiles(context.Context) ([]string, error)  { return []string{f.id}, f.call() }
func (f *fakeBackend) Upload(context.Context, string, []byte) error { return f.call() }
func (f *fakeBackend) EditFile(context.Context, string, []byte) error {
	return f.call()
}
func (f *fakeBackend) Download(context.Context, string) ([]byte, error) {
	return []byte(f.id), f.call()
}
func (f *fakeBackend) DeleteFile(context.Context, string) error            { return f.call() }
func (f *fakeBackend) CreateAccount(context.Context, string, string) error { return f.call() }
func (f *fakeBackend) GetSystemHash(context.Context) (string, error)       { return f.id, f.call() }

type staticMembers struct {
	mu      sync.Mutex
	members []group.Member
}

func (s *staticMembers) CurrentMembers() []group.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]group.Member(nil), s.members...)
}

func (s *staticMembers) set(ms []group.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = ms
}

func backendsNamed(ids ...string) []group.Member {
	out := make([]group.Member, len(ids))
	for i, id := range ids {
		out[i] = group.Member{ID: id, API: "http://" + id}
	}
	return out
}

type fixture struct {
	members *staticMembers
	log     *callLog
	fail    map[string]error
	d       *Dispatcher
	reg     *metrics.Registry
}

func newFixture(ids ...string) *fixture {
	f := &fixture{
		members: &staticMembers{members: backendsNamed(ids...)},
		log:     &callLog{},
		fail:    map[string]error{},
		reg:     metrics.NewRegistry(),
	}
	f.d = NewDispatcher(Config{
		Members: f.members,
		Factory: func(m group.Member) Backend {
			return &fakeBackend{id: m.ID, log: f.log, fail: f.fail[m.ID]}
		},
		Logger:  logging.NewNopLogger(),
		Metrics: f.reg,
	})
	return f
}

func TestRoundRobinHitsEachBackendOnceInViewOrder(t *testing.T) {
	f := newFixture("a", "b", "c")
	ctx := context.Background()
	var got []string
	for i := 0; i < 6; i++ {
		h, err := f.d.GetSystemHash(ctx)
		require.NoError(t, err)
		got = append(got, h)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestRoundRobinIsFair(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("k calls over n backends differ by at most one per backend", prop.ForAll(
		func(n, k int) bool {
			ids := make([]string, n)
			for i := range ids {
				ids[i] = fmt.Sprintf("b%d", i)
			}
			f := newFixture(ids...)
			for i := 0; i < k; i++ {
				if _, err := f.d.GetSystemHash(context.Background()); err != nil {
					return false
				}
			}
			counts := map[string]int{}
			for _, id := range f.log.all() {
				counts[id]++
			}
			lo, hi := k, 0
			for _, id := range ids {
				lo = min(lo, counts[id])
				hi = max(hi, counts[id])
			}
			return hi-lo <= 1
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 50),
	))
	properties.TestingRun(t)
}

func TestViewChangeResetsCursor(t *testing.T) {
	f := newFixture("a", "b", "c")
	ctx := context.Background()
	_, _ = f.d.GetSystemHash(ctx)
	_, _ = f.d.GetSystemHash(ctx)

	f.members.set(backendsNamed("a", "c"))
	f.d.ViewChanged(cluster.Change{Left: backendsNamed("b")})

	h, err := f.d.GetSystemHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", h)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.reg.GatewayBackends))
}

func TestNoBackendFailsFast(t *testing.T) {
	f := newFixture()
	_, err := f.d.ListFiles(context.Background())
	assert.True(t, errors.Is(err, ErrNoBackendAvailable))
	assert.Empty(t, f.log.all())
}

func TestMembersWithoutAPIAreSkipped(t *testing.T) {
	f := newFixture("a")
	f.members.set(append(f.members.CurrentMembers(), group.Member{ID: "other-gateway"}))
	for i := 0; i < 3; i++ {
		h, err := f.d.GetSystemHash(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a", h)
	}
}

func TestUnreachableBackendIsRetriedOnNext(t *testing.T) {
	f := newFixture("a", "b", "c")
	f.fail["a"] = fmt.Errorf("%w: connection refused", ErrBackendUnreachable)

	data, err := f.d.Download(context.Background(), "f")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.Equal(t, []string{"a", "b"}, f.log.all())
}

func TestDomainErrorsAreNotRetried(t *testing.T) {
	f := newFixture("a", "b")
	f.fail["a"] = storage.ErrNotFound

	_, err := f.d.Download(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Equal(t, []string{"a"}, f.log.all())
}

func TestRetriesExhausted(t *testing.T) {
	f := newFixture("a", "b")
	for _, id := range []string{"a", "b"} {
		f.fail[id] = fmt.Errorf("%w: %s down", ErrBackendUnreachable, id)
	}

	err := f.d.Upload(context.Background(), "f", []byte("x"))
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, ErrBackendUnreachable))
	assert.Equal(t, []string{"a", "b", "a"}, f.log.all())
}

func TestMembershipRefreshedBetweenAttempts(t *testing.T) {
	f := newFixture("a")
	f.fail["a"] = ErrBackendUnreachable
	f.d.factory = func(m group.Member) Backend {
		if m.ID == "a" {
			// The view loses a and gains b while the first attempt runs.
			f.members.set(backendsNamed("b"))
		}
		return &fakeBackend{id: m.ID, log: f.log, fail: f.fail[m.ID]}
	}

	err := f.d.DeleteFile(context.Background(), "f")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.log.all())
}

func TestBackendsVanishingMidRetryKeepsLastError(t *testing.T) {
	f := newFixture("a")
	f.fail["a"] = fmt.Errorf("%w: a down", ErrBackendUnreachable)
	f.d.factory = func(m group.Member) Backend {
		f.members.set(nil)
		return &fakeBackend{id: m.ID, log: f.log, fail: f.fail[m.ID]}
	}

	err := f.d.Upload(context.Background(), "f", []byte("x"))
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, ErrNoBackendAvailable))
	assert.True(t, errors.Is(err, ErrBackendUnreachable))
	assert.Contains(t, err.Error(), "a down")
	assert.Equal(t, []string{"a"}, f.log.all())
}

func TestOperationsForwardResults(t *testing.T) {
	f := newFixture("a")
	ctx := context.Background()

	tok, err := f.d.Login(ctx, "u", "p")
	require.NoError(t, err)
	assert.Equal(t, "token-a", tok)

	names, err := f.d.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)

	require.NoError(t, f.d.EditFile(ctx, "f", nil))
	require.NoError(t, f.d.CreateAccount(ctx, "u", "p"))
	assert.Len(t, f.log.all(), 4)
}
