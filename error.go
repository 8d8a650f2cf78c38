package initgate

import (
	"errors"
	"fmt"

	"github.com/cleitonmarx/initgate/internal/reflectx"
)

var (
	// ErrInvalidTopology matches every error found by App.Validate.
	ErrInvalidTopology = errors.New("initgate: invalid topology")
	// ErrAlreadyStarted is returned when an App is run twice.
	ErrAlreadyStarted = errors.New("initgate: app already started")
	// ErrResourceFailed is returned by WaitForReadiness for resources that ended in a failed state.
	ErrResourceFailed = errors.New("initgate: resource failed")
)

// Error represents a startup error with context about the resource and component that failed.
// It includes the original error, component name or function name, and source location for debugging.
type Error struct {
	Err           error
	Resource      string
	ComponentName string
	FileLine      string
}

// NewError wraps an error with component context (type name or function name and location).
// For functions, includes source file and line number; for types, includes package.TypeName.
func NewError(err error, component any) Error {
	name, fileLine := reflectx.ComponentName(component)
	return Error{
		Err:           err,
		ComponentName: name,
		FileLine:      fileLine,
	}
}

// newResourceError is NewError bound to a resource.
func newResourceError(res string, err error, component any) Error {
	e := NewError(err, component)
	e.Resource = res
	return e
}

// Error implements the error interface, returning a formatted error message with component context.
func (e Error) Error() string {
	msg := fmt.Sprintf("error: %v", e.Err)
	if e.Resource != "" {
		msg += ", resource: " + e.Resource
	}
	switch {
	case e.FileLine != "":
		msg += fmt.Sprintf(", function: %s, location: %s", e.ComponentName, e.FileLine)
	case e.ComponentName != "":
		msg += ", component: " + e.ComponentName
	}
	return msg
}

func (e Error) Unwrap() error { return e.Err }

// ResourceExitError is the failure of a resource-backed initializer whose resource
// failed to start, failed to initialise or exited with a non-zero code.
type ResourceExitError struct {
	Resource string
	State    string
	ExitCode *int
}

func (e *ResourceExitError) Error() string {
	if e.ExitCode != nil {
		return fmt.Sprintf("resource %q ended in state %s with exit code %d", e.Resource, e.State, *e.ExitCode)
	}
	return fmt.Sprintf("resource %q ended in state %s", e.Resource, e.State)
}

// exitCode maps the error returned by a runnable to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}
