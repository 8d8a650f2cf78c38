package telemetry

import (
	"sync"
	"time"

	"github.com/cleitonmarx/initgate/resource"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "initgate"

// Metrics exports initializer outcomes and resource states to Prometheus.
// It is used as an initializer recorder and as a resource state observer.
type Metrics struct {
	initializerRuns     *prometheus.CounterVec
	initializerDuration *prometheus.HistogramVec
	resourceState       *prometheus.GaugeVec
	healthStatus        *prometheus.GaugeVec

	mu   sync.Mutex
	last map[string]resource.Snapshot
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		last: make(map[string]resource.Snapshot),
		initializerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "initializer",
				Name:      "runs_total",
				Help:      "Initializer runs by outcome.",
			},
			[]string{"resource", "initializer", "outcome"},
		),
		initializerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "initializer",
				Name:      "duration_seconds",
				Help:      "Initializer run duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource", "initializer"},
		),
		resourceState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "state",
				Help:      "1 for the current state of each resource, 0 for states it left.",
			},
			[]string{"resource", "state"},
		),
		healthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "health_status",
				Help:      "Latest probe status: 0 unknown, 1 unhealthy, 2 degraded, 3 healthy.",
			},
			[]string{"resource", "probe"},
		),
	}
	for _, c := range []prometheus.Collector{m.initializerRuns, m.initializerDuration, m.resourceState, m.healthStatus} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InitializerFinished records the outcome and duration of one initializer run.
func (m *Metrics) InitializerFinished(res, name string, elapsed time.Duration, err error) {
	outcome := "complete"
	if err != nil {
		outcome = "failed"
	}
	m.initializerRuns.WithLabelValues(res, name, outcome).Inc()
	m.initializerDuration.WithLabelValues(res, name).Observe(elapsed.Seconds())
}

// ResourceStateChanged tracks state and probe changes of a resource. Notifications
// older than the last one seen for the resource are dropped, so racing writers cannot
// leave a stale state exported.
func (m *Metrics) ResourceStateChanged(prev, next resource.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.last[next.Name]; ok {
		if next.Version <= last.Version {
			return
		}
		prev = last
	}
	m.last[next.Name] = next

	if prev.State.Text != next.State.Text {
		if prev.State.Text != "" {
			m.resourceState.WithLabelValues(next.Name, prev.State.Text).Set(0)
		}
		m.resourceState.WithLabelValues(next.Name, next.State.Text).Set(1)
	}
	for _, r := range next.HealthReports {
		if old, ok := prev.Report(r.Name); ok && old.Status == r.Status {
			continue
		}
		m.healthStatus.WithLabelValues(next.Name, r.Name).Set(float64(r.Status))
	}
}
