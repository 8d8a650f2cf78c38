package initializer

import (
	"context"

	"github.com/cleitonmarx/initgate/resource"
)

// WaitUntilReady publishes the resource as Waiting and blocks until every health report
// of the resource, apart from its own initializer probes, is Healthy. It returns the
// state that Waiting replaced.
func (c *Coordinator) WaitUntilReady(ctx context.Context, res string) (resource.StateSnapshot, error) {
	e, err := c.entry(res)
	if err != nil {
		return resource.StateSnapshot{}, err
	}

	var prior resource.StateSnapshot
	if _, err := c.states.Transition(res, func(s resource.Snapshot) resource.Snapshot {
		prior = s.State
		if s.State.IsStopped() {
			return s
		}
		s.State = resource.Waiting
		return s
	}); err != nil {
		return prior, err
	}
	c.resourceLogger(res).Debug("waiting for resource health before running initializers")

	snap, err := c.states.WaitFor(ctx, res, func(s resource.Snapshot) bool {
		return s.State.IsStopped() || e.otherReportsHealthy(s)
	})
	if err != nil {
		return prior, cancelled(err)
	}
	if snap.State.IsStopped() {
		return prior, &StoppedError{Resource: res, State: snap.State.Text, ExitCode: snap.ExitCode}
	}
	e.initialisable.Resolve(Outcome{State: snap.State})
	return prior, nil
}

// otherReportsHealthy evaluates the gate predicate: the resource's own initializer
// probes are excluded, since they cannot turn Healthy before the gate opens.
func (e *entry) otherReportsHealthy(s resource.Snapshot) bool {
	for _, r := range s.HealthReports {
		if _, own := e.probeNames[r.Name]; own {
			continue
		}
		if r.Status != resource.HealthHealthy {
			return false
		}
	}
	return true
}
