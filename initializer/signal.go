package initializer

import (
	"context"
	"sync"

	"github.com/cleitonmarx/initgate/resource"
)

// Signal is a value that is resolved exactly once. Every waiter observes the same value.
type Signal[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// NewSignal creates an unresolved signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{done: make(chan struct{})}
}

// Resolve sets the value and releases all waiters. Only the first call has an effect;
// it reports whether this call resolved the signal.
func (s *Signal[T]) Resolve(v T) bool {
	resolved := false
	s.once.Do(func() {
		s.value = v
		resolved = true
		close(s.done)
	})
	return resolved
}

// Done is closed once the signal is resolved.
func (s *Signal[T]) Done() <-chan struct{} {
	return s.done
}

// Value returns the resolved value, or false if the signal is still pending.
func (s *Signal[T]) Value() (T, bool) {
	select {
	case <-s.done:
		return s.value, true
	default:
		var zero T
		return zero, false
	}
}

// Wait blocks until the signal is resolved or ctx is done.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.value, nil
	case <-ctx.Done():
		var zero T
		return zero, cancelled(ctx.Err())
	}
}

// Outcome is the terminal result of a resource's startup sequence.
type Outcome struct {
	State    resource.StateSnapshot
	ExitCode *int
	Err      error
}

// Failed reports whether dependents must not start on this outcome.
func (o Outcome) Failed() bool {
	return dependencyReason(o) != ""
}

func dependencyReason(o Outcome) DependencyReason {
	switch o.State.Text {
	case resource.StateFailedToInitialise:
		return ReasonFailedToInitialise
	case resource.StateFailedToStart:
		return ReasonFailedToStart
	case resource.StateExited:
		if o.ExitCode == nil || *o.ExitCode != 0 {
			return ReasonExited
		}
	case resource.StateFinished:
		if o.ExitCode != nil && *o.ExitCode != 0 {
			return ReasonExited
		}
	}
	if o.Err != nil {
		return ReasonFailedToStart
	}
	return ""
}
