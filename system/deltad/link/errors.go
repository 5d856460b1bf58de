package link

import (
	"fmt"

	"github.com/signadot/deltalog/system/deltad/api"
)

// StatusError is a response from the server with a failure status. It
// unwraps to the decoded api.Error, so errors.Is(err, api.ErrNotFound)
// works across the wire.
type StatusError struct {
	Status int
	Err    *api.Error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// TransportError is a failure to reach the server or read its response:
// refused connections, timeouts, cancelled contexts, truncated bodies.
// It matches api.ErrTransient.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	t, ok := target.(*api.Error)
	return ok && t.Code == api.ErrCodeTransient
}
