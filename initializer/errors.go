package initializer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRegistryConflict matches every registration error raised while building a topology.
	ErrRegistryConflict = errors.New("initializer: registry conflict")
	// ErrInvalidDefinition is returned for initializers without a name or an action.
	ErrInvalidDefinition = errors.New("initializer: invalid definition")
	// ErrCancelled is returned when the startup scope is cancelled while waiting.
	// It wraps the context error.
	ErrCancelled = errors.New("initializer: cancelled")
	// ErrUnknownResource is returned for resources the coordinator was not prepared for.
	ErrUnknownResource = errors.New("initializer: unknown resource")
)

// DuplicateNameError is returned when an initializer name is registered twice for a resource.
type DuplicateNameError struct {
	Resource string
	Name     string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("initializer: %q already registered for resource %q", e.Name, e.Resource)
}

// Is matches ErrRegistryConflict.
func (e *DuplicateNameError) Is(target error) bool { return target == ErrRegistryConflict }

// FrozenRegistryError is returned when registering after coordination of the resource started.
type FrozenRegistryError struct {
	Resource string
	Name     string
}

func (e *FrozenRegistryError) Error() string {
	return fmt.Sprintf("initializer: cannot register %q, coordination of resource %q already started", e.Name, e.Resource)
}

// Is matches ErrRegistryConflict.
func (e *FrozenRegistryError) Is(target error) bool { return target == ErrRegistryConflict }

// InitializerFailure is the error returned by one initializer action.
type InitializerFailure struct {
	Resource    string
	Initializer string
	Err         error
}

func (e *InitializerFailure) Error() string {
	return fmt.Sprintf("initializer %q of resource %q failed: %v", e.Initializer, e.Resource, e.Err)
}

func (e *InitializerFailure) Unwrap() error { return e.Err }

// AggregateFailure collects every failed initializer of a resource.
type AggregateFailure struct {
	Resource string
	Failures []*InitializerFailure
}

func (e *AggregateFailure) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, fmt.Sprintf("%s: %v", f.Initializer, f.Err))
	}
	return fmt.Sprintf("resource %q failed to initialise (%s)", e.Resource, strings.Join(names, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AggregateFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// DependencyReason tells why a provider resource let its dependents down.
type DependencyReason string

const (
	// ReasonFailedToInitialise means one of the provider's initializers failed.
	ReasonFailedToInitialise DependencyReason = "failed to initialise"
	// ReasonFailedToStart means the provider never started.
	ReasonFailedToStart DependencyReason = "failed to start"
	// ReasonExited means the provider stopped with a non-zero or unknown exit code.
	ReasonExited DependencyReason = "exited"
)

// DependencyFailure is returned to a consumer whose provider ended in a failed state.
type DependencyFailure struct {
	Consumer string
	Provider string
	Reason   DependencyReason
	ExitCode *int
	Err      error
}

func (e *DependencyFailure) Error() string {
	msg := fmt.Sprintf("resource %q cannot start: dependency %q %s", e.Consumer, e.Provider, e.Reason)
	if e.ExitCode != nil {
		msg += fmt.Sprintf(" with exit code %d", *e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DependencyFailure) Unwrap() error { return e.Err }

// StoppedError is returned by the readiness gate when the resource stopped before
// it became initialisable.
type StoppedError struct {
	Resource string
	State    string
	ExitCode *int
}

func (e *StoppedError) Error() string {
	if e.ExitCode != nil {
		return fmt.Sprintf("resource %q stopped in state %s with exit code %d", e.Resource, e.State, *e.ExitCode)
	}
	return fmt.Sprintf("resource %q stopped in state %s", e.Resource, e.State)
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
