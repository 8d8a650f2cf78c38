package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cleitonmarx/initgate/notify"
	"github.com/cleitonmarx/initgate/resource"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StatePublisher is the part of the resource state service the monitor writes to.
type StatePublisher interface {
	Get(name string) (resource.Snapshot, bool)
	Transition(name string, fn notify.TransitionFunc) (resource.Snapshot, error)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets how often each resource's probes are evaluated.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithCheckTimeout bounds a single probe evaluation.
func WithCheckTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.checkTimeout = d
		}
	}
}

// WithLogger sets the logger used for report changes.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// Monitor periodically evaluates the probes registered for each resource and
// publishes changed results as health reports.
type Monitor struct {
	states       StatePublisher
	interval     time.Duration
	checkTimeout time.Duration
	logger       logrus.FieldLogger

	mu     sync.RWMutex
	probes map[string][]Probe
	order  []string
	wake   map[string]chan struct{}
}

// NewMonitor creates a Monitor publishing to states.
func NewMonitor(states StatePublisher, opts ...Option) *Monitor {
	m := &Monitor{
		states:       states,
		interval:     time.Second,
		checkTimeout: 5 * time.Second,
		logger:       logrus.StandardLogger(),
		probes:       make(map[string][]Probe),
		wake:         make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers probes for a resource. Each probe gets an Unknown report right away,
// so nothing watching the resource mistakes "not evaluated yet" for healthy.
// Probes must be added before Run.
func (m *Monitor) Add(res string, probes ...Probe) error {
	if _, err := m.states.Transition(res, func(s resource.Snapshot) resource.Snapshot {
		for _, p := range probes {
			if _, ok := s.Report(p.Name()); !ok {
				s = s.WithReport(resource.HealthReport{Name: p.Name(), Status: resource.HealthUnknown})
			}
		}
		return s
	}); err != nil {
		return fmt.Errorf("health: add probes to %q: %w", res, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.probes[res]; !ok {
		m.order = append(m.order, res)
		m.wake[res] = make(chan struct{}, 1)
	}
	m.probes[res] = append(m.probes[res], probes...)
	return nil
}

// AddSource registers every probe of src for a resource.
func (m *Monitor) AddSource(res string, src ProbeSource) error {
	return m.Add(res, src.Probes()...)
}

// Refresh asks the monitor to evaluate a resource's probes without waiting for the
// next tick. It never blocks.
func (m *Monitor) Refresh(res string) {
	m.mu.RLock()
	ch, ok := m.wake[res]
	m.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run evaluates probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.RLock()
	resources := append([]string(nil), m.order...)
	m.mu.RUnlock()

	var g errgroup.Group
	for _, res := range resources {
		g.Go(func() error {
			m.watch(ctx, res)
			return nil
		})
	}
	return g.Wait()
}

func (m *Monitor) watch(ctx context.Context, res string) {
	m.mu.RLock()
	wake := m.wake[res]
	m.mu.RUnlock()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.Evaluate(ctx, res); err != nil && ctx.Err() == nil {
			m.logger.WithField("resource", res).WithError(err).Warn("health evaluation failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// Evaluate checks every probe of a resource once and publishes the reports that changed.
func (m *Monitor) Evaluate(ctx context.Context, res string) error {
	m.mu.RLock()
	probes := append([]Probe(nil), m.probes[res]...)
	m.mu.RUnlock()

	reports := make([]resource.HealthReport, 0, len(probes))
	for _, p := range probes {
		reports = append(reports, m.check(ctx, p).Report(p.Name()))
	}

	current, ok := m.states.Get(res)
	if !ok {
		return fmt.Errorf("health: unknown resource %q", res)
	}
	var changed []resource.HealthReport
	for _, r := range reports {
		if prev, ok := current.Report(r.Name); !ok || !prev.Equal(r) {
			changed = append(changed, r)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	_, err := m.states.Transition(res, func(s resource.Snapshot) resource.Snapshot {
		for _, r := range changed {
			s = s.WithReport(r)
		}
		return s
	})
	if err != nil {
		return err
	}
	for _, r := range changed {
		m.logger.WithFields(logrus.Fields{
			"resource": res,
			"probe":    r.Name,
			"status":   r.Status.String(),
		}).Debug(r.Description)
	}
	return nil
}

func (m *Monitor) check(ctx context.Context, p Probe) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Unhealthy("", fmt.Errorf("panic in probe %q: %v", p.Name(), r))
		}
	}()
	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()
	return p.Check(checkCtx)
}
