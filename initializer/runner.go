package initializer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cleitonmarx/initgate/resource"
	"github.com/cleitonmarx/initgate/telemetry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// RunInitializers runs every initializer of a resource concurrently and publishes the
// outcome. prior is the state the readiness gate replaced; it is restored on success
// when it carries more than the coordinator's own transient states.
//
// A failing initializer never cancels its siblings: the outcome is decided once all of
// them reached a terminal state.
func (c *Coordinator) RunInitializers(ctx context.Context, res string, prior resource.StateSnapshot) error {
	e, err := c.entry(res)
	if err != nil {
		return err
	}
	log := c.resourceLogger(res)

	if len(e.defs) == 0 {
		snap, err := c.restore(res, resource.StateWaiting, prior)
		if err != nil {
			return err
		}
		e.done.Resolve(Outcome{State: snap.State, ExitCode: snap.ExitCode})
		return nil
	}

	stopped := false
	if _, err := c.states.Transition(res, func(s resource.Snapshot) resource.Snapshot {
		stopped = s.State.IsStopped()
		if !stopped {
			s.State = resource.Initializing
		}
		return s
	}); err != nil {
		return err
	}
	if stopped {
		snap, _ := c.states.Get(res)
		err := &StoppedError{Resource: res, State: snap.State.Text, ExitCode: snap.ExitCode}
		e.done.Resolve(Outcome{State: snap.State, ExitCode: snap.ExitCode, Err: err})
		return err
	}
	log.WithField("initializers", len(e.defs)).Info("running initializers")

	failures := make([]*InitializerFailure, len(e.defs))
	interrupted := make([]bool, len(e.defs))
	var g errgroup.Group
	for i, def := range e.defs {
		g.Go(func() error {
			failures[i], interrupted[i] = c.runOne(ctx, def, e.cells[i], log)
			return nil
		})
	}
	_ = g.Wait()

	agg := &AggregateFailure{Resource: res}
	for _, f := range failures {
		if f != nil {
			agg.Failures = append(agg.Failures, f)
		}
	}

	if len(agg.Failures) > 0 {
		snap, err := c.states.Transition(res, func(s resource.Snapshot) resource.Snapshot {
			if !s.State.IsStopped() {
				s.State = resource.FailedToInitialise
			}
			return s
		})
		if err != nil {
			return err
		}
		for _, f := range agg.Failures {
			log.WithField("initializer", f.Initializer).WithError(f.Err).Error("initializer failed")
		}
		e.done.Resolve(Outcome{State: snap.State, ExitCode: snap.ExitCode, Err: agg})
		return agg
	}
	if slices.Contains(interrupted, true) {
		return cancelled(ctx.Err())
	}

	snap, err := c.restore(res, resource.StateInitializing, prior)
	if err != nil {
		return err
	}
	log.WithField("state", snap.State.Text).Info("initializers complete")
	e.done.Resolve(Outcome{State: snap.State, ExitCode: snap.ExitCode})
	return nil
}

// runOne executes a single initializer and returns its failure, if any. An error caused
// by cancellation of ctx leaves the initializer Running and is reported through the
// second result instead of as a failure.
func (c *Coordinator) runOne(ctx context.Context, def Definition, cell *runtimeCell, log logrus.FieldLogger) (*InitializerFailure, bool) {
	runID := uuid.New()
	ec := ExecutionContext{
		Resource:    def.Resource,
		Initializer: def.Name,
		RunID:       runID,
		Logger: log.WithFields(logrus.Fields{
			"initializer": def.Name,
			"run_id":      runID.String(),
		}),
		Services: c.services,
	}

	cell.advance(WaitingToStart, Running, nil)
	ec.Logger.Debug("initializer started")

	spanCtx, span := telemetry.StartSpan(ctx, "initializer "+def.Resource+"/"+def.Name,
		attribute.String("initgate.resource", def.Resource),
		attribute.String("initgate.initializer", def.Name),
		attribute.String("initgate.run_id", runID.String()),
	)
	start := time.Now()
	err := runAction(spanCtx, def.Action, ec)
	elapsed := time.Since(start)
	telemetry.RecordErrorAndStatus(span, err)
	span.End()

	for _, r := range c.recorders {
		r.InitializerFinished(def.Resource, def.Name, elapsed, err)
	}

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			ec.Logger.WithError(err).Debug("initializer cancelled")
			return nil, true
		}
		cell.advance(Running, Failed, err)
		return &InitializerFailure{Resource: def.Resource, Initializer: def.Name, Err: err}, false
	}
	cell.advance(Running, Complete, nil)
	ec.Logger.WithField("elapsed", elapsed.String()).Info("initializer complete")
	return nil, false
}

func runAction(ctx context.Context, action Action, ec ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx, ec)
}

// restore publishes the post-initialization state, but only while the resource is still
// in the expected coordinator state. A newer external transition is left untouched.
func (c *Coordinator) restore(res, expected string, prior resource.StateSnapshot) (resource.Snapshot, error) {
	return c.states.Transition(res, func(s resource.Snapshot) resource.Snapshot {
		if s.State.Text != expected {
			return s
		}
		s.State = restoredState(prior)
		now := time.Now()
		s.StartedAt = &now
		return s
	})
}

// restoredState is the prior state when it says more than the coordinator's own
// transient states, Running otherwise.
func restoredState(prior resource.StateSnapshot) resource.StateSnapshot {
	switch prior.Text {
	case "", resource.StateNotStarted, resource.StateStarting, resource.StateWaiting, resource.StateInitializing:
		return resource.Running
	}
	if prior.IsStopped() || prior.Text == resource.StateFailedToInitialise {
		return resource.Running
	}
	return prior
}
