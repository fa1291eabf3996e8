package lock

import "errors"

var (
	// ErrLockTimeout is returned when a lock is not granted within the timeout
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrNoLeader is returned when no view, and so no leader, is known
	ErrNoLeader = errors.New("no lock leader known")
)
