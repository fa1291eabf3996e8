package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func fixed(status Status) CheckFunc {
	return func(context.Context) Check { return Check{Status: status} }
}

func TestReadinessAndLivenessAreSeparate(t *testing.T) {
	c := NewChecker(0)

	readyCalled, liveCalled := false, false
	c.RegisterReadinessCheck("ready", func(context.Context) Check {
		readyCalled = true
		return Check{Status: StatusHealthy}
	})
	c.RegisterLivenessCheck("live", func(context.Context) Check {
		liveCalled = true
		return Check{Status: StatusHealthy}
	})

	resp := c.CheckLiveness(context.Background())
	if readyCalled {
		t.Error("readiness check ran during liveness")
	}
	if !liveCalled {
		t.Error("liveness check did not run")
	}
	if _, ok := resp.Checks["live"]; !ok {
		t.Error("liveness result missing")
	}

	c.CheckReadiness(context.Background())
	if !readyCalled {
		t.Error("readiness check did not run")
	}
}

func TestWorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   Status
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy beats degraded", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(0)
			for i, s := range tt.checks {
				c.RegisterReadinessCheck(string(rune('a'+i)), fixed(s))
			}
			if got := c.CheckReadiness(context.Background()).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckMetadataIsFilled(t *testing.T) {
	c := NewChecker(0)
	c.RegisterReadinessCheck("slow", func(context.Context) Check {
		time.Sleep(10 * time.Millisecond)
		return Check{Status: StatusHealthy}
	})

	check := c.CheckReadiness(context.Background()).Checks["slow"]
	if check.Name != "slow" {
		t.Errorf("name = %q", check.Name)
	}
	if check.Duration < 10*time.Millisecond {
		t.Errorf("duration %v too short", check.Duration)
	}
	if check.LastChecked.IsZero() {
		t.Error("last checked not set")
	}
}

func TestChecksAreBoundedByTimeout(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.RegisterReadinessCheck("db", PingCheck(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	resp := c.CheckReadiness(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("check was not cancelled")
	}
	if resp.Status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", resp.Status)
	}
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(context.Context) error { return nil })(context.Background())
	if ok.Status != StatusHealthy {
		t.Errorf("status = %s", ok.Status)
	}
	bad := PingCheck(func(context.Context) error { return errors.New("connection refused") })(context.Background())
	if bad.Status != StatusUnhealthy || bad.Message != "connection refused" {
		t.Errorf("got %+v", bad)
	}
}

func TestSignalCheck(t *testing.T) {
	done := make(chan struct{})
	check := SignalCheck(done, "state transfer pending")

	if got := check(context.Background()); got.Status != StatusUnhealthy || got.Message != "state transfer pending" {
		t.Errorf("before close: %+v", got)
	}
	close(done)
	if got := check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("after close: %+v", got)
	}
}

func TestMembershipCheck(t *testing.T) {
	tests := []struct {
		name     string
		accepted bool
		members  int
		want     Status
	}{
		{"no view", false, 0, StatusUnhealthy},
		{"alone", true, 1, StatusDegraded},
		{"full", true, 3, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := MembershipCheck(func() (bool, int) { return tt.accepted, tt.members }, 2)(context.Background())
			if check.Status != tt.want {
				t.Errorf("status = %s, want %s", check.Status, tt.want)
			}
			if check.Details["members"] != tt.members {
				t.Errorf("details = %v", check.Details)
			}
		})
	}
}

func TestBackendsCheck(t *testing.T) {
	if got := BackendsCheck(func() int { return 0 })(context.Background()); got.Status != StatusUnhealthy {
		t.Errorf("no backends: %s", got.Status)
	}
	if got := BackendsCheck(func() int { return 2 })(context.Background()); got.Status != StatusHealthy {
		t.Errorf("two backends: %s", got.Status)
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		readyCode int
		liveCode  int
	}{
		{"healthy", StatusHealthy, http.StatusOK, http.StatusOK},
		{"degraded", StatusDegraded, http.StatusServiceUnavailable, http.StatusOK},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(0)
			c.RegisterReadinessCheck("x", fixed(tt.status))
			c.RegisterLivenessCheck("x", fixed(tt.status))

			rec := httptest.NewRecorder()
			c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.readyCode {
				t.Errorf("ready code = %d, want %d", rec.Code, tt.readyCode)
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Error("expected Content-Type application/json")
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("body status = %s", resp.Status)
			}

			rec = httptest.NewRecorder()
			c.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
			if rec.Code != tt.liveCode {
				t.Errorf("live code = %d, want %d", rec.Code, tt.liveCode)
			}
		})
	}
}

func TestConcurrentRegistration(t *testing.T) {
	c := NewChecker(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.RegisterReadinessCheck(string(rune('a'+i)), fixed(StatusHealthy))
		}(i)
		go func() {
			defer wg.Done()
			c.CheckReadiness(context.Background())
		}()
	}
	wg.Wait()
	if n := len(c.CheckReadiness(context.Background()).Checks); n != 20 {
		t.Errorf("checks = %d, want 20", n)
	}
}
