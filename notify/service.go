// Package notify publishes resource state and lets callers wait for it to change.
//
// Each resource's snapshot lives behind an atomic pointer to an immutable version.
// Writers go through Transition, which retries a compare-and-set until the transition
// function has been applied to the latest version, so concurrent writers never lose
// each other's updates.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cleitonmarx/initgate/resource"
)

var (
	// ErrUnknownResource is returned for names that were never registered.
	ErrUnknownResource = errors.New("notify: unknown resource")
	// ErrAlreadyRegistered is returned when a resource name is registered twice.
	ErrAlreadyRegistered = errors.New("notify: resource already registered")
)

// TransitionFunc computes the next snapshot from the current one.
// It receives a private copy and may be called more than once when writers race,
// so it must not have side effects beyond its return value and captured locals.
type TransitionFunc func(resource.Snapshot) resource.Snapshot

// Observer receives every applied state change (ResourceStateObserver).
// Calls for one resource may arrive concurrently and out of order when writers race;
// next.Version orders them.
type Observer interface {
	ResourceStateChanged(prev, next resource.Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(prev, next resource.Snapshot)

// ResourceStateChanged implements Observer.
func (f ObserverFunc) ResourceStateChanged(prev, next resource.Snapshot) { f(prev, next) }

// version is one immutable published snapshot. changed is closed when a newer
// version replaces it.
type version struct {
	snapshot resource.Snapshot
	changed  chan struct{}
}

type slot struct {
	current atomic.Pointer[version]
}

// Service holds the published state of every registered resource.
type Service struct {
	slots sync.Map // name -> *slot

	observersMu sync.RWMutex
	observers   []Observer
}

// NewService creates an empty Service.
func NewService() *Service {
	return &Service{}
}

// Register publishes the initial snapshot of a resource as version 0.
func (s *Service) Register(initial resource.Snapshot) error {
	snap := initial.Clone()
	snap.Version = 0
	sl := &slot{}
	sl.current.Store(&version{snapshot: snap, changed: make(chan struct{})})
	if _, loaded := s.slots.LoadOrStore(initial.Name, sl); loaded {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, initial.Name)
	}
	return nil
}

// Subscribe adds an observer for all resources.
func (s *Service) Subscribe(o Observer) {
	if o == nil {
		return
	}
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

// Names returns the registered resource names, sorted.
func (s *Service) Names() []string {
	var names []string
	s.slots.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Get returns a copy of the current snapshot of a resource.
func (s *Service) Get(name string) (resource.Snapshot, bool) {
	sl, ok := s.slot(name)
	if !ok {
		return resource.Snapshot{}, false
	}
	return sl.current.Load().snapshot.Clone(), true
}

// Transition atomically applies fn to the current snapshot of a resource and
// publishes the result. It returns the snapshot that was applied.
func (s *Service) Transition(name string, fn TransitionFunc) (resource.Snapshot, error) {
	sl, ok := s.slot(name)
	if !ok {
		return resource.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	for {
		cur := sl.current.Load()
		next := fn(cur.snapshot.Clone())
		next.Name = name
		next.Version = cur.snapshot.Version + 1
		nv := &version{snapshot: next, changed: make(chan struct{})}
		if !sl.current.CompareAndSwap(cur, nv) {
			continue
		}
		close(cur.changed)
		s.notify(cur.snapshot, next)
		return next.Clone(), nil
	}
}

// WaitFor blocks until pred holds for the resource's snapshot, or ctx is done.
// The predicate is evaluated against the current snapshot and then once per
// published version; there is no polling.
func (s *Service) WaitFor(ctx context.Context, name string, pred func(resource.Snapshot) bool) (resource.Snapshot, error) {
	sl, ok := s.slot(name)
	if !ok {
		return resource.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	for {
		v := sl.current.Load()
		if pred(v.snapshot.Clone()) {
			return v.snapshot.Clone(), nil
		}
		select {
		case <-v.changed:
		case <-ctx.Done():
			return v.snapshot.Clone(), ctx.Err()
		}
	}
}

// WaitForState blocks until the resource reaches one of the given state texts.
func (s *Service) WaitForState(ctx context.Context, name string, states ...string) (resource.Snapshot, error) {
	return s.WaitFor(ctx, name, func(snap resource.Snapshot) bool {
		for _, st := range states {
			if snap.State.Text == st {
				return true
			}
		}
		return false
	})
}

func (s *Service) slot(name string) (*slot, bool) {
	v, ok := s.slots.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*slot), true
}

func (s *Service) notify(prev, next resource.Snapshot) {
	s.observersMu.RLock()
	observers := s.observers
	s.observersMu.RUnlock()
	for _, o := range observers {
		o.ResourceStateChanged(prev.Clone(), next.Clone())
	}
}
