package initgate

import (
	"context"
	"fmt"
	"time"

	"github.com/cleitonmarx/initgate/resource"
)

// WaitForResource blocks until the named resource reaches one of the given states.
func (a *App) WaitForResource(ctx context.Context, name string, states ...string) (resource.Snapshot, error) {
	return a.states.WaitForState(ctx, name, states...)
}

// WaitForReadiness blocks until every resource is Running with all of its health
// reports Healthy, or Finished. It wakes on state changes rather than polling.
//
// It returns an error wrapping ErrResourceFailed as soon as a resource ended in a
// failed state. If the app stops running first, it returns the app's final error.
// If the timeout elapses, the error names the first resource that was not ready.
func (a *App) WaitForReadiness(ctx context.Context, timeout time.Duration) error {
	if len(a.resources) == 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-a.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	for _, spec := range a.resources {
		snap, err := a.states.WaitFor(waitCtx, spec.name, settled)
		if err != nil {
			select {
			case <-a.done:
				return a.runErr
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return newResourceError(spec.name, fmt.Errorf("not ready after %s, state %s: %w", timeout, snap.State.Text, err), nil)
		}
		if failed(snap) {
			return newResourceError(spec.name, fmt.Errorf("%w: %s", ErrResourceFailed, snap.State.Text), nil)
		}
	}
	return nil
}

func settled(s resource.Snapshot) bool {
	switch s.State.Text {
	case resource.StateRunning:
		return s.Healthy()
	case resource.StateFinished:
		return true
	}
	return failed(s)
}

func failed(s resource.Snapshot) bool {
	switch s.State.Text {
	case resource.StateFailedToStart, resource.StateFailedToInitialise:
		return true
	case resource.StateExited:
		return s.ExitCode == nil || *s.ExitCode != 0
	}
	return false
}
