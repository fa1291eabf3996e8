package transport

import (
	"io"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
)

// ResourceCleanup closes registered resources in reverse order (LIFO). It
// removes cascading error handling from multi-socket initialization:
//
//	cleanup := NewResourceCleanup(logger)
//	defer cleanup.Cleanup()
//	pull, err := factory.NewPullSocket()
//	if err != nil {
//	    return err
//	}
//	cleanup.Add(pull, "inbound")
//	...
//	cleanup.Clear() // success, keep everything open
type ResourceCleanup struct {
	resources []namedCloser
	logger    logging.Logger
}

type namedCloser struct {
	closer io.Closer
	name   string
}

// NewResourceCleanup creates a new ResourceCleanup. A nil logger uses the default.
func NewResourceCleanup(logger logging.Logger) *ResourceCleanup {
	return &ResourceCleanup{
		resources: make([]namedCloser, 0, 8),
		logger:    logging.OrDefault(logger),
	}
}

// Add registers a resource to be cleaned up.
func (rc *ResourceCleanup) Add(closer io.Closer, name string) {
	rc.resources = append(rc.resources, namedCloser{closer: closer, name: name})
}

// Cleanup closes all registered resources, logging failures. Idempotent.
func (rc *ResourceCleanup) Cleanup() {
	_ = rc.CloseAll()
}

// Clear forgets all registered resources without closing them.
func (rc *ResourceCleanup) Clear() {
	rc.resources = rc.resources[:0]
}

// CloseAll closes all registered resources and returns the first error.
func (rc *ResourceCleanup) CloseAll() error {
	var firstErr error
	for i := len(rc.resources) - 1; i >= 0; i-- {
		r := rc.resources[i]
		if r.closer == nil {
			continue
		}
		if err := r.closer.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			rc.logger.Warn("failed to close resource", logging.String("resource", r.name), logging.Error(err))
		}
	}
	rc.resources = rc.resources[:0]
	return firstErr
}

// Len returns the number of registered resources.
func (rc *ResourceCleanup) Len() int {
	return len(rc.resources)
}
