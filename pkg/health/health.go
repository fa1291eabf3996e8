package health

import (
	"context"
	"sync"
	"time"
)

// NewChecker creates a checker. A non-positive timeout uses DefaultCheckTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Checker{
		readyChecks: make(map[string]CheckFunc),
		liveChecks:  make(map[string]CheckFunc),
		timeout:     timeout,
		started:     time.Now(),
	}
}

// RegisterReadinessCheck registers a check that gates traffic.
func (c *Checker) RegisterReadinessCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyChecks[name] = check
}

// RegisterLivenessCheck registers a check that reports whether the process
// should be restarted.
func (c *Checker) RegisterLivenessCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveChecks[name] = check
}

// CheckReadiness runs the readiness checks.
func (c *Checker) CheckReadiness(ctx context.Context) Response {
	return c.run(ctx, c.snapshot(c.readyChecks))
}

// CheckLiveness runs the liveness checks.
func (c *Checker) CheckLiveness(ctx context.Context) Response {
	return c.run(ctx, c.snapshot(c.liveChecks))
}

func (c *Checker) snapshot(m map[string]CheckFunc) map[string]CheckFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]CheckFunc, len(m))
	for name, fn := range m {
		out[name] = fn
	}
	return out
}

// run executes checks concurrently, each bounded by the checker timeout. The
// worst status wins.
func (c *Checker) run(ctx context.Context, checks map[string]CheckFunc) Response {
	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(c.started),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			check := fn(checkCtx)
			check.Name = name
			check.Duration = time.Since(start)
			check.LastChecked = start

			mu.Lock()
			response.Checks[name] = check
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	for _, check := range response.Checks {
		response.Status = worse(response.Status, check.Status)
	}
	return response
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
