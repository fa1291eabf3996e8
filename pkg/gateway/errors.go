package gateway

import "errors"

var (
	// ErrNoBackendAvailable is returned at once when the view holds no backend
	ErrNoBackendAvailable = errors.New("no backend available")

	// ErrBackendUnreachable marks a failed attempt against one backend; the
	// dispatcher retries these on the next backend
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrRetriesExhausted is returned when every attempt failed
	ErrRetriesExhausted = errors.New("all attempts failed")
)
