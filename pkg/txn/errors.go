package txn

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionAborted is returned when account creation was rolled back
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrDuplicateAccount is returned when the username already exists on
	// this node or on any peer
	ErrDuplicateAccount = fmt.Errorf("duplicate account: %w", ErrTransactionAborted)

	// ErrReplicationTimeout is returned when some peer did not acknowledge in time
	ErrReplicationTimeout = fmt.Errorf("replication timeout: %w", ErrTransactionAborted)
)
