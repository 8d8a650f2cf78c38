// Package initgate coordinates the startup of a multi-resource application.
//
// Resources are declared on an App together with their runnables, health probes and
// initializers. A resource runs its initializers once it is otherwise healthy, and
// resources that wait for it only start after those initializers reached a terminal
// state. Failures propagate to dependents as startup failures.
package initgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cleitonmarx/initgate/config"
	"github.com/cleitonmarx/initgate/depend"
	"github.com/cleitonmarx/initgate/health"
	"github.com/cleitonmarx/initgate/initializer"
	"github.com/cleitonmarx/initgate/internal/reflectx"
	"github.com/cleitonmarx/initgate/introspection"
	"github.com/cleitonmarx/initgate/notify"
	"github.com/cleitonmarx/initgate/resource"
	"github.com/cleitonmarx/initgate/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func init() {
	config.RegisterParser[logrus.Level](logrus.ParseLevel)
}

// settings are read from the App's configuration provider when it starts.
type settings struct {
	HealthInterval time.Duration `config:"INITGATE_HEALTH_INTERVAL" default:"1s"`
	LogLevel       logrus.Level  `config:"INITGATE_LOG_LEVEL" default:"info"`
	LogFormat      string        `config:"INITGATE_LOG_FORMAT" default:"text"`
}

// resourceSpec is a resource as declared on the App.
type resourceSpec struct {
	name       string
	runnable   Runnable
	probes     []health.Probe
	sources    []health.ProbeSource
	properties []resource.Property
}

// allProbes returns every probe reporting the health of the resource, apart from the
// initializer probes added by the coordinator.
func (s *resourceSpec) allProbes() []health.Probe {
	probes := append([]health.Probe(nil), s.probes...)
	for _, src := range s.sources {
		probes = append(probes, src.Probes()...)
	}
	if src, ok := s.runnable.(health.ProbeSource); ok {
		probes = append(probes, src.Probes()...)
	}
	if rc, ok := s.runnable.(ReadyChecker); ok {
		probes = append(probes, health.ErrorProbe(s.name+"-ready", rc.IsReady))
	}
	return probes
}

// ResourceOption configures a resource declared with App.Resource.
type ResourceOption func(*resourceSpec)

// WithRunnable sets the process started for the resource.
// Without a runnable the resource is external: it only reports health.
func WithRunnable(r Runnable) ResourceOption {
	return func(s *resourceSpec) { s.runnable = r }
}

// WithProbes adds health probes to the resource.
func WithProbes(probes ...health.Probe) ResourceOption {
	return func(s *resourceSpec) { s.probes = append(s.probes, probes...) }
}

// WithProbeSource adds every probe of src to the resource.
func WithProbeSource(src health.ProbeSource) ResourceOption {
	return func(s *resourceSpec) {
		if src != nil {
			s.sources = append(s.sources, src)
		}
	}
}

// WithProperties attaches free-form properties to the resource snapshot.
func WithProperties(props ...resource.Property) ResourceOption {
	return func(s *resourceSpec) { s.properties = append(s.properties, props...) }
}

// startup holds the components created when the App runs.
type startup struct {
	coord   *initializer.Coordinator
	monitor *health.Monitor
}

// monitorRefresher re-evaluates a resource's probes after one of its initializers finished.
type monitorRefresher struct{ monitor *health.Monitor }

func (r monitorRefresher) InitializerFinished(res, _ string, _ time.Duration, _ error) {
	r.monitor.Refresh(res)
}

// App declares the resources of an application and coordinates their startup.
type App struct {
	states       *notify.Service
	registry     *initializer.Registry
	services     *depend.Container
	logger       *logrus.Logger
	customLogger bool
	provider     config.Provider
	registerer   prometheus.Registerer

	resources          []*resourceSpec
	byName             map[string]*resourceSpec
	edges              []introspection.Edge
	initializerTargets []string
	introspectors      []Introspector
	buildErrs          []error

	started atomic.Bool
	done    chan struct{}
	runErr  error
}

// NewApp creates an application without resources. Configuration is read from
// environment variables until WithConfig replaces the provider.
func NewApp() *App {
	return &App{
		states:   notify.NewService(),
		registry: initializer.NewRegistry(),
		services: depend.NewContainer(),
		logger:   logrus.New(),
		provider: config.NewEnvVarProvider(),
		byName:   make(map[string]*resourceSpec),
		done:     make(chan struct{}),
	}
}

// WithConfig sets the provider for app settings and config:"key" struct fields.
func (a *App) WithConfig(p config.Provider) *App {
	if p != nil {
		a.provider = p
	}
	return a
}

// WithLogger sets the logger. INITGATE_LOG_LEVEL and INITGATE_LOG_FORMAT are not
// applied to loggers supplied this way.
func (a *App) WithLogger(l *logrus.Logger) *App {
	if l != nil {
		a.logger = l
		a.customLogger = true
	}
	return a
}

// WithServices sets the container initializers register services into and
// resolve:"name" struct fields are injected from.
func (a *App) WithServices(c *depend.Container) *App {
	if c != nil {
		a.services = c
	}
	return a
}

// WithMetrics exports initializer and resource metrics to reg.
func (a *App) WithMetrics(reg prometheus.Registerer) *App {
	a.registerer = reg
	return a
}

// Resource declares a resource (fluent method).
func (a *App) Resource(name string, opts ...ResourceOption) *App {
	if name == "" {
		a.buildErrs = append(a.buildErrs, fmt.Errorf("%w: resource name is empty", ErrInvalidTopology))
		return a
	}
	spec := &resourceSpec{name: name}
	for _, opt := range opts {
		opt(spec)
	}
	snap := resource.New(name)
	snap.Properties = spec.properties
	if err := a.states.Register(snap); err != nil {
		a.buildErrs = append(a.buildErrs, fmt.Errorf("%w: %w", ErrInvalidTopology, err))
		return a
	}
	a.resources = append(a.resources, spec)
	a.byName[name] = spec
	return a
}

// WithInitializer registers an initializer for a resource (fluent method).
// Registration errors are reported by Validate and Run.
func (a *App) WithInitializer(res, name string, action initializer.Action) *App {
	a.initializerTargets = append(a.initializerTargets, res)
	if err := a.registry.Register(res, name, action); err != nil {
		a.buildErrs = append(a.buildErrs, err)
	}
	return a
}

// WaitForInitialization keeps consumer from starting until the initializers of
// provider reached a terminal state (fluent method).
func (a *App) WaitForInitialization(consumer, provider string) *App {
	a.edges = append(a.edges, introspection.Edge{Consumer: consumer, Provider: provider, Kind: introspection.EdgeWaitFor})
	return a
}

// WithResourceInitializer makes initRes an initializer of target (fluent method).
// initRes waits until target is otherwise healthy, then runs; target completes its
// initialization once initRes stopped. initRes failing to start, failing to initialise
// or exiting with a non-zero code fails target's initialization.
func (a *App) WithResourceInitializer(target, initRes string) *App {
	a.edges = append(a.edges, introspection.Edge{Consumer: target, Provider: initRes, Kind: introspection.EdgeInitializer})
	return a.WithInitializer(target, initRes, a.awaitResource(initRes))
}

func (a *App) awaitResource(name string) initializer.Action {
	return func(ctx context.Context, ec initializer.ExecutionContext) error {
		ec.Logger.WithField("initializer_resource", name).Debug("waiting for initializer resource to stop")
		snap, err := a.states.WaitFor(ctx, name, func(s resource.Snapshot) bool {
			return s.State.IsStopped() || s.State.Text == resource.StateFailedToInitialise
		})
		if err != nil {
			return err
		}
		failed := snap.State.Text == resource.StateFailedToStart ||
			snap.State.Text == resource.StateFailedToInitialise ||
			(snap.State.Text == resource.StateExited && snap.ExitCode == nil) ||
			(snap.ExitCode != nil && *snap.ExitCode != 0)
		if failed {
			return &ResourceExitError{Resource: name, State: snap.State.Text, ExitCode: snap.ExitCode}
		}
		return nil
	}
}

// Subscribe adds an observer notified of every resource state change.
func (a *App) Subscribe(o notify.Observer) *App {
	a.states.Subscribe(o)
	return a
}

// Snapshot returns the current snapshot of a resource.
func (a *App) Snapshot(name string) (resource.Snapshot, bool) {
	return a.states.Get(name)
}

// Run starts every resource and blocks until all of them stopped or settled, or a
// signal (SIGINT, SIGTERM) arrived. It returns the startup failures of all resources.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		// Interrupt signal sent from terminal
		os.Interrupt,
		// Termination signal sent from Kubernetes or other orchestrators
		syscall.SIGTERM,
	)
	defer stop()

	return a.runWithContext(ctx)
}

// RunWithContext runs the app with the provided context for cancellation control.
func (a *App) RunWithContext(ctx context.Context) error {
	return a.runWithContext(ctx)
}

// RunAsync runs the app in a background goroutine.
// The returned channel receives the final error (or nil) when it completes.
func (a *App) RunAsync(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.runWithContext(ctx)
		close(errCh)
	}()
	return errCh
}

func (a *App) runWithContext(ctx context.Context) (err error) {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer func() {
		a.runErr = err
		close(a.done)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inspector := config.NewInspector(a.provider)
	var s settings
	if err := config.LoadStruct(ctx, inspector, &s); err != nil {
		return fmt.Errorf("initgate: load settings: %w", err)
	}
	a.configureLogger(s)

	if err := a.Validate(); err != nil {
		return err
	}

	defer combineClosers(a.closers())()

	if err := a.loadConfig(ctx, inspector); err != nil {
		return err
	}
	su, err := a.prepare(s)
	if err != nil {
		return err
	}
	if err := a.introspect(ctx, inspector); err != nil {
		return err
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		_ = su.monitor.Run(monitorCtx)
	}()
	defer func() {
		stopMonitor()
		<-monitorDone
	}()

	a.logger.WithField("resources", len(a.resources)).Info("starting resources")
	errs := make([]error, len(a.resources))
	var g errgroup.Group
	for i, spec := range a.resources {
		g.Go(func() error {
			errs[i] = a.startResource(ctx, su, spec)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (a *App) configureLogger(s settings) {
	if a.customLogger {
		return
	}
	a.logger.SetLevel(s.LogLevel)
	if strings.EqualFold(s.LogFormat, "json") {
		a.logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// prepare creates the coordinator and the health monitor and registers every probe.
func (a *App) prepare(s settings) (*startup, error) {
	monitor := health.NewMonitor(a.states, health.WithInterval(s.HealthInterval), health.WithLogger(a.logger))
	opts := []initializer.Option{
		initializer.WithLogger(a.logger),
		initializer.WithServices(a.services),
		initializer.WithRecorder(monitorRefresher{monitor: monitor}),
	}
	if a.registerer != nil {
		m, err := telemetry.NewMetrics(a.registerer)
		if err != nil {
			return nil, fmt.Errorf("initgate: register metrics: %w", err)
		}
		opts = append(opts, initializer.WithRecorder(m))
		a.states.Subscribe(m)
	}
	coord := initializer.NewCoordinator(a.registry, a.states, opts...)

	for _, spec := range a.resources {
		initProbes, err := coord.Prepare(spec.name)
		if err != nil {
			return nil, err
		}
		if err := monitor.Add(spec.name, append(spec.allProbes(), initProbes...)...); err != nil {
			return nil, err
		}
	}
	a.states.Subscribe(notify.ObserverFunc(func(prev, next resource.Snapshot) {
		if prev.State.Text != next.State.Text {
			monitor.Refresh(next.Name)
		}
	}))
	return &startup{coord: coord, monitor: monitor}, nil
}

// startResource waits for the dependencies of a resource, starts its runnable and
// runs its startup sequence. It returns once the runnable returned, or once the
// startup sequence ended for resources without one.
func (a *App) startResource(ctx context.Context, su *startup, spec *resourceSpec) error {
	log := a.logger.WithField("resource", spec.name)

	if err := a.awaitDependencies(ctx, su.coord, spec.name); err != nil {
		if errors.Is(err, initializer.ErrCancelled) {
			log.Debug("startup cancelled while waiting for dependencies")
			return nil
		}
		return a.failToStart(su, spec, err, nil)
	}
	if spec.runnable != nil && reflectx.IsPointerStruct(reflect.ValueOf(spec.runnable)) {
		if err := reflectx.IterateStructFields(spec.runnable, a.services.ResolveStructFieldValue); err != nil {
			return a.failToStart(su, spec, err, spec.runnable)
		}
	}

	now := time.Now()
	if _, err := a.states.Transition(spec.name, func(s resource.Snapshot) resource.Snapshot {
		s.State = resource.Starting
		s.StartedAt = &now
		return s
	}); err != nil {
		return newResourceError(spec.name, err, nil)
	}
	log.Info("resource starting")

	var exited chan error
	if spec.runnable != nil {
		exited = make(chan error, 1)
		go func() { exited <- a.runResource(ctx, spec) }()
	}

	var errs []error
	if err := su.coord.Coordinate(ctx, spec.name); err != nil && !endedElsewhere(err) {
		errs = append(errs, newResourceError(spec.name, err, nil))
	}
	if exited != nil {
		errs = append(errs, <-exited)
	}
	return errors.Join(errs...)
}

// endedElsewhere reports coordination errors that are not failures of their own:
// cancellation, or a runnable that stopped and reports its own error.
func endedElsewhere(err error) bool {
	var stopped *initializer.StoppedError
	return errors.Is(err, initializer.ErrCancelled) || errors.As(err, &stopped)
}

// awaitDependencies blocks until every provider of res settled and every resource
// res initializes became initialisable.
func (a *App) awaitDependencies(ctx context.Context, coord *initializer.Coordinator, res string) error {
	var subs []*initializer.Subscription
	for _, e := range a.edges {
		switch {
		case e.Kind == introspection.EdgeWaitFor && e.Consumer == res:
			subs = append(subs, coord.BlockUntil(ctx, e.Provider, res))
		case e.Kind == introspection.EdgeInitializer && e.Provider == res:
			subs = append(subs, coord.BlockUntilInitialisable(ctx, e.Consumer, res))
		}
	}
	for _, sub := range subs {
		if err := sub.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) failToStart(su *startup, spec *resourceSpec, err error, component any) error {
	now := time.Now()
	_, _ = a.states.Transition(spec.name, func(s resource.Snapshot) resource.Snapshot {
		s.State = resource.FailedToStart
		s.StoppedAt = &now
		return s
	})
	su.coord.Abort(spec.name, err)
	a.logger.WithField("resource", spec.name).WithError(err).Error("resource failed to start")
	return newResourceError(spec.name, err, component)
}

// runResource runs the runnable of a resource and publishes how it stopped. A resource
// that failed to initialise keeps that state; only its stop time and exit code change.
func (a *App) runResource(ctx context.Context, spec *resourceSpec) error {
	log := a.logger.WithField("resource", spec.name)
	err := runSafe(ctx, spec.name, spec.runnable)
	clean := err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err()))
	code := 0
	if !clean {
		code = exitCode(err)
	}

	now := time.Now()
	snap, _ := a.states.Transition(spec.name, func(s resource.Snapshot) resource.Snapshot {
		s.StoppedAt = &now
		s.ExitCode = &code
		if s.State.Text == resource.StateFailedToInitialise {
			return s
		}
		s.State = resource.Finished
		if !clean {
			s.State = resource.Exited
		}
		return s
	})
	if snap.State.Text == resource.StateFailedToInitialise {
		log.WithField("exit_code", code).Warn("resource stopped after failing to initialise")
		if clean {
			return nil
		}
		return err
	}
	if clean {
		log.Info("resource finished")
		return nil
	}
	log.WithError(err).WithField("exit_code", code).Error("resource exited")
	return err
}

// runSafe calls a runnable's Run method with panic recovery.
// Wraps both panics and errors in an Error for debugging.
func runSafe(ctx context.Context, res string, r Runnable) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newResourceError(res, fmt.Errorf("panic in Run func: %v", rec), r)
		}
	}()
	err = r.Run(ctx)
	if err != nil {
		err = newResourceError(res, err, r.Run)
	}
	return err
}

// loadConfig injects config:"key" fields of runnables and introspectors.
func (a *App) loadConfig(ctx context.Context, p config.Provider) error {
	for _, target := range a.components() {
		if !reflectx.IsPointerStruct(reflect.ValueOf(target)) {
			continue
		}
		if err := reflectx.IterateStructFields(target, config.LoadStructFieldValue(ctx, p)); err != nil {
			return NewError(err, target)
		}
	}
	return nil
}

func (a *App) components() []any {
	var out []any
	for _, spec := range a.resources {
		if spec.runnable != nil {
			out = append(out, spec.runnable)
		}
	}
	for _, i := range a.introspectors {
		out = append(out, i)
	}
	return out
}

func (a *App) closers() []func() {
	var closers []func()
	for _, c := range a.components() {
		if closer, ok := c.(Closer); ok {
			closers = append(closers, closer.Close)
		}
	}
	return closers
}

// combineClosers returns a function that invokes all closers in LIFO (reverse) order.
func combineClosers(closers []func()) func() {
	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
