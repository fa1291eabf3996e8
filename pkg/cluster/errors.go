package cluster

import "errors"

var (
	// ErrNoView is returned before the first view has been applied
	ErrNoView = errors.New("no view installed yet")
)
