package initializer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cleitonmarx/initgate/depend"
	"github.com/cleitonmarx/initgate/health"
	"github.com/cleitonmarx/initgate/notify"
	"github.com/cleitonmarx/initgate/resource"
	"github.com/sirupsen/logrus"
)

// States is the resource state substrate the coordinator reads and writes.
type States interface {
	Get(name string) (resource.Snapshot, bool)
	Transition(name string, fn notify.TransitionFunc) (resource.Snapshot, error)
	WaitFor(ctx context.Context, name string, pred func(resource.Snapshot) bool) (resource.Snapshot, error)
}

// Recorder receives the outcome of every initializer run.
type Recorder interface {
	InitializerFinished(res, name string, elapsed time.Duration, err error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger initializer runs and state changes are logged to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithServices sets the container handed to initializers in their ExecutionContext.
func WithServices(s *depend.Container) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.services = s
		}
	}
}

// WithRecorder adds a recorder notified after each initializer run.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorders = append(c.recorders, r)
		}
	}
}

// entry is the coordination state of one resource. It is created when coordination
// of the resource starts, which freezes the resource's initializer set.
type entry struct {
	name          string
	defs          []Definition
	cells         []*runtimeCell
	probeNames    map[string]struct{}
	initialisable *Signal[Outcome]
	done          *Signal[Outcome]
}

// Coordinator drives the readiness gate, the initializer runner and dependency
// waiters for every resource of an application.
type Coordinator struct {
	registry  *Registry
	states    States
	logger    logrus.FieldLogger
	services  *depend.Container
	recorders []Recorder

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCoordinator creates a Coordinator running the initializers of registry against states.
func NewCoordinator(registry *Registry, states States, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		states:   states,
		logger:   logrus.StandardLogger(),
		services: depend.NewContainer(),
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prepare starts coordination of a resource and returns the health probes reporting
// its initializers. Later registrations for the resource fail with FrozenRegistryError.
func (c *Coordinator) Prepare(res string) ([]health.Probe, error) {
	e, err := c.entry(res)
	if err != nil {
		return nil, err
	}
	probes := make([]health.Probe, 0, len(e.cells))
	for i, cell := range e.cells {
		probes = append(probes, runtimeProbe{name: ProbeName(res, e.defs[i].Name), cell: cell})
	}
	return probes, nil
}

// Coordinate runs the startup sequence of a resource: readiness gate, then initializers.
// Dependency waiters blocked on the resource are released once it returns, except when
// ctx was cancelled.
func (c *Coordinator) Coordinate(ctx context.Context, res string) error {
	e, err := c.entry(res)
	if err != nil {
		return err
	}
	prior, err := c.WaitUntilReady(ctx, res)
	if err != nil {
		var stopped *StoppedError
		if errors.As(err, &stopped) {
			o := Outcome{State: resource.StateSnapshot{Text: stopped.State}, ExitCode: stopped.ExitCode, Err: err}
			e.initialisable.Resolve(o)
			e.done.Resolve(o)
		}
		return err
	}
	return c.RunInitializers(ctx, res, prior)
}

// Abort releases everything waiting on a resource that will never run its startup
// sequence, typically because it failed to start.
func (c *Coordinator) Abort(res string, cause error) {
	e, err := c.entry(res)
	if err != nil {
		return
	}
	o := Outcome{Err: cause}
	if snap, ok := c.states.Get(res); ok {
		o.State = snap.State
		o.ExitCode = snap.ExitCode
	}
	if !o.Failed() {
		o.State = resource.FailedToStart
	}
	e.initialisable.Resolve(o)
	e.done.Resolve(o)
}

// Outcome returns the terminal outcome of a resource, or false while it is pending.
func (c *Coordinator) Outcome(res string) (Outcome, bool) {
	e, err := c.entry(res)
	if err != nil {
		return Outcome{}, false
	}
	return e.done.Value()
}

// RuntimeState returns the current runtime state of one initializer.
func (c *Coordinator) RuntimeState(res, name string) (RuntimeState, bool) {
	e, err := c.entry(res)
	if err != nil {
		return RuntimeState{}, false
	}
	for i, d := range e.defs {
		if d.Name == name {
			return e.cells[i].Load(), true
		}
	}
	return RuntimeState{}, false
}

// Ready reports whether every non-initializer report of the resource is Healthy and
// every initializer is Complete.
func (c *Coordinator) Ready(res string) bool {
	e, err := c.entry(res)
	if err != nil {
		return false
	}
	snap, ok := c.states.Get(res)
	if !ok || !e.otherReportsHealthy(snap) {
		return false
	}
	for _, cell := range e.cells {
		if cell.Load().Phase != Complete {
			return false
		}
	}
	return true
}

func (c *Coordinator) entry(res string) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[res]; ok {
		return e, nil
	}
	if _, ok := c.states.Get(res); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, res)
	}
	defs := c.registry.Freeze(res)
	e := &entry{
		name:          res,
		defs:          defs,
		cells:         make([]*runtimeCell, len(defs)),
		probeNames:    make(map[string]struct{}, len(defs)),
		initialisable: NewSignal[Outcome](),
		done:          NewSignal[Outcome](),
	}
	for i, d := range defs {
		e.cells[i] = newRuntimeCell(d.Name)
		e.probeNames[ProbeName(res, d.Name)] = struct{}{}
	}
	c.entries[res] = e
	return e, nil
}

func (c *Coordinator) resourceLogger(res string) logrus.FieldLogger {
	return c.logger.WithField("resource", res)
}
