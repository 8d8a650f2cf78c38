// Package initializer coordinates resource initializers: tasks that must finish after a
// resource is otherwise healthy and before dependents may use it.
//
// The flow for one resource is: readiness gate (wait for every non-initializer probe to
// be healthy) → runner (execute all initializers concurrently) → terminal outcome
// (Running or FailedToInitialise), which releases every dependency waiter blocked on the
// resource.
package initializer

import (
	"context"
	"fmt"
	"sync"

	"github.com/cleitonmarx/initgate/depend"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExecutionContext is handed to every initializer run. Cancellation travels in the
// context.Context passed next to it.
type ExecutionContext struct {
	Resource    string
	Initializer string
	RunID       uuid.UUID
	Logger      logrus.FieldLogger
	Services    *depend.Container
}

// Action is the body of an initializer.
type Action func(ctx context.Context, ec ExecutionContext) error

// Definition is a named initializer registered for a resource.
type Definition struct {
	Resource string
	Name     string
	Action   Action
}

// Registry holds the initializers declared per resource. A resource's set is frozen
// once its coordination starts.
type Registry struct {
	mu     sync.Mutex
	defs   map[string][]Definition
	frozen map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:   make(map[string][]Definition),
		frozen: make(map[string]bool),
	}
}

// Register adds a named initializer to a resource.
func (r *Registry) Register(res, name string, action Action) error {
	if res == "" || name == "" || action == nil {
		return fmt.Errorf("%w: resource %q, name %q", ErrInvalidDefinition, res, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen[res] {
		return &FrozenRegistryError{Resource: res, Name: name}
	}
	for _, d := range r.defs[res] {
		if d.Name == name {
			return &DuplicateNameError{Resource: res, Name: name}
		}
	}
	r.defs[res] = append(r.defs[res], Definition{Resource: res, Name: name, Action: action})
	return nil
}

// List returns the initializers of a resource in registration order.
func (r *Registry) List(res string) []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Definition(nil), r.defs[res]...)
}

// Freeze rejects further registrations for a resource and returns its final set.
func (r *Registry) Freeze(res string) []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen[res] = true
	return append([]Definition(nil), r.defs[res]...)
}
