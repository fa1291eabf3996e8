package replication

import "errors"

var (
	// ErrQuorumNotReached is returned when a replicated write was rolled back,
	// either on timeout or because a peer rejected it
	ErrQuorumNotReached = errors.New("quorum not reached")
)
