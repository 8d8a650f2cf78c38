package initializer

import (
	"context"

	"github.com/cleitonmarx/initgate/resource"
)

// Subscription is a consumer's pending wait on a provider resource.
type Subscription struct {
	Provider string
	Consumer string
	result   *Signal[error]
}

// Wait blocks until the provider settled or ctx is done. It returns nil when the
// consumer may start.
func (s *Subscription) Wait(ctx context.Context) error {
	err, waitErr := s.result.Wait(ctx)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Done is closed once the subscription resolved.
func (s *Subscription) Done() <-chan struct{} {
	return s.result.Done()
}

// Err returns the resolution of the subscription; nil while pending or on success.
func (s *Subscription) Err() error {
	err, _ := s.result.Value()
	return err
}

// BlockUntil holds consumer in Waiting until the initializers of provider reached a
// terminal state. The subscription fails with a DependencyFailure when the provider
// failed to initialise or start, and with ErrCancelled when ctx is done first.
func (c *Coordinator) BlockUntil(ctx context.Context, provider, consumer string) *Subscription {
	return c.subscribe(ctx, provider, consumer, func(e *entry) *Signal[Outcome] { return e.done })
}

// BlockUntilInitialisable holds blocked in Waiting until the readiness gate of target
// opened. It backs resources that act as initializers of another resource.
func (c *Coordinator) BlockUntilInitialisable(ctx context.Context, target, blocked string) *Subscription {
	return c.subscribe(ctx, target, blocked, func(e *entry) *Signal[Outcome] { return e.initialisable })
}

func (c *Coordinator) subscribe(ctx context.Context, provider, consumer string, signal func(*entry) *Signal[Outcome]) *Subscription {
	sub := &Subscription{Provider: provider, Consumer: consumer, result: NewSignal[error]()}

	e, err := c.entry(provider)
	if err != nil {
		sub.result.Resolve(err)
		return sub
	}
	if _, err := c.states.Transition(consumer, func(s resource.Snapshot) resource.Snapshot {
		if !s.State.IsStopped() {
			s.State = resource.Waiting
		}
		return s
	}); err != nil {
		sub.result.Resolve(err)
		return sub
	}
	c.resourceLogger(consumer).WithField("provider", provider).Debug("waiting for dependency")

	providerSignal := signal(e)
	go func() {
		select {
		case <-providerSignal.Done():
			o, _ := providerSignal.Value()
			sub.result.Resolve(dependencyError(consumer, provider, o))
		case <-ctx.Done():
			sub.result.Resolve(cancelled(ctx.Err()))
		}
	}()
	return sub
}

func dependencyError(consumer, provider string, o Outcome) error {
	reason := dependencyReason(o)
	if reason == "" {
		return nil
	}
	return &DependencyFailure{
		Consumer: consumer,
		Provider: provider,
		Reason:   reason,
		ExitCode: o.ExitCode,
		Err:      o.Err,
	}
}
