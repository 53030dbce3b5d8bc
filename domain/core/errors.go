package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)

	// Request errors
	ErrInvalidInput     = errors.New("invalid input")
	ErrAdaptersDisabled = errors.New("style adapters are disabled")

	// Engine errors
	ErrConfiguration  = errors.New("pipeline configuration error")
	ErrConnectivity   = errors.New("render backend unreachable")
	ErrTimedOut       = errors.New("job timed out")
	ErrConnectionLost = errors.New("event channel closed before job completed")
	ErrNoOutputFound  = errors.New("no image output found in job history")
	ErrStorageIO      = errors.New("artifact storage I/O failure")
)

// RemoteError is returned for non-2xx responses from the render backend.
type RemoteError struct {
	Status int
	Path   string
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend %s returned HTTP %d: %s", e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("backend %s returned HTTP %d", e.Path, e.Status)
}

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewConfigurationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, reason)
}

func NewConnectivityError(target string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConnectivity, target, err)
}

func NewStorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageIO, op, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRemoteError reports whether err carries a backend HTTP status and returns it.
func IsRemoteError(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}

// IsRecoverable reports whether the caller may retry the same request later.
// Configuration and no-output failures point at a template/backend mismatch and are not.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrConnectivity) ||
		errors.Is(err, ErrTimedOut) ||
		errors.Is(err, ErrConnectionLost)
}
