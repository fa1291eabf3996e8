package health

import (
	"context"
)

// PingCheck reports unhealthy when ping fails, such as an unreachable
// account database.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		if err := ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: "connected"}
	}
}

// SignalCheck is unhealthy until done is closed.
func SignalCheck(done <-chan struct{}, pending string) CheckFunc {
	return func(ctx context.Context) Check {
		select {
		case <-done:
			return Check{Status: StatusHealthy}
		default:
			return Check{Status: StatusUnhealthy, Message: pending}
		}
	}
}

// MembershipCheck reports on this member's view of its group. Without a
// view it is unhealthy; a view smaller than want is degraded.
func MembershipCheck(state func() (accepted bool, members int), want int) CheckFunc {
	return func(ctx context.Context) Check {
		accepted, members := state()
		check := Check{Details: map[string]any{"members": members}}
		switch {
		case !accepted:
			check.Status = StatusUnhealthy
			check.Message = "no view installed"
		case members < want:
			check.Status = StatusDegraded
			check.Message = "fewer members than expected"
		default:
			check.Status = StatusHealthy
		}
		return check
	}
}

// BackendsCheck is unhealthy while count reports no backends.
func BackendsCheck(count func() int) CheckFunc {
	return func(ctx context.Context) Check {
		n := count()
		check := Check{Details: map[string]any{"backends": n}}
		if n == 0 {
			check.Status = StatusUnhealthy
			check.Message = "no backend available"
		} else {
			check.Status = StatusHealthy
		}
		return check
	}
}
