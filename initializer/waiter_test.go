package initializer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cleitonmarx/initgate/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockUntil(t *testing.T) {
	tests := map[string]struct {
		action         Action
		expectedReason DependencyReason
	}{
		"provider-succeeds": {
			action: noop,
		},
		"provider-fails": {
			action:         func(context.Context, ExecutionContext) error { return errors.New("E") },
			expectedReason: ReasonFailedToInitialise,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, "db", "app")
			release := make(chan struct{})
			require.NoError(t, f.registry.Register("db", "migrate", func(ctx context.Context, ec ExecutionContext) error {
				<-release
				return tt.action(ctx, ec)
			}))

			sub := f.coord.BlockUntil(context.Background(), "db", "app")
			assert.Equal(t, resource.Waiting, f.state("app"))

			go func() { _ = f.coord.Coordinate(context.Background(), "db") }()
			select {
			case <-sub.Done():
				t.Fatal("consumer released before provider initializers were terminal")
			case <-time.After(20 * time.Millisecond):
			}
			assert.Equal(t, resource.Waiting, f.state("app"))
			assert.NoError(t, sub.Err())

			close(release)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := sub.Wait(ctx)
			if tt.expectedReason == "" {
				require.NoError(t, err)
				assert.Equal(t, resource.Running, f.state("db"))
				return
			}

			var dep *DependencyFailure
			require.ErrorAs(t, err, &dep)
			assert.Equal(t, "db", dep.Provider)
			assert.Equal(t, "app", dep.Consumer)
			assert.Equal(t, tt.expectedReason, dep.Reason)
			var agg *AggregateFailure
			assert.ErrorAs(t, err, &agg)
			assert.Equal(t, err, sub.Err())
			assert.Equal(t, resource.Waiting, f.state("app"))
		})
	}
}

func TestBlockUntil_ProviderFailedToStart(t *testing.T) {
	f := newFixture(t, "db", "app")
	sub := f.coord.BlockUntil(context.Background(), "db", "app")

	cause := errors.New("image not found")
	_, err := f.states.Transition("db", func(s resource.Snapshot) resource.Snapshot {
		s.State = resource.FailedToStart
		return s
	})
	require.NoError(t, err)
	f.coord.Abort("db", cause)

	err = sub.Wait(context.Background())
	var dep *DependencyFailure
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, ReasonFailedToStart, dep.Reason)
	assert.ErrorIs(t, err, cause)
}

func TestBlockUntil_ProviderExited(t *testing.T) {
	f := newFixture(t, "db", "app")
	sub := f.coord.BlockUntil(context.Background(), "db", "app")

	code := 137
	_, err := f.states.Transition("db", func(s resource.Snapshot) resource.Snapshot {
		s.State = resource.Exited
		s.ExitCode = &code
		return s
	})
	require.NoError(t, err)
	f.coord.Abort("db", errors.New("killed"))

	var dep *DependencyFailure
	require.ErrorAs(t, sub.Wait(context.Background()), &dep)
	assert.Equal(t, ReasonExited, dep.Reason)
	require.NotNil(t, dep.ExitCode)
	assert.Equal(t, 137, *dep.ExitCode)
	assert.Contains(t, dep.Error(), "exit code 137")
}

func TestBlockUntil_Cancelled(t *testing.T) {
	f := newFixture(t, "db", "app")
	ctx, cancel := context.WithCancel(context.Background())
	sub := f.coord.BlockUntil(ctx, "db", "app")
	cancel()

	err := sub.Wait(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)

	waitCtx, waitCancel := context.WithCancel(context.Background())
	waitCancel()
	other := f.coord.BlockUntil(context.Background(), "db", "app")
	require.ErrorIs(t, other.Wait(waitCtx), ErrCancelled)
}

func TestBlockUntil_UnknownResources(t *testing.T) {
	f := newFixture(t, "app")
	require.ErrorIs(t, f.coord.BlockUntil(context.Background(), "db", "app").Wait(context.Background()), ErrUnknownResource)

	f = newFixture(t, "db")
	require.Error(t, f.coord.BlockUntil(context.Background(), "db", "app").Wait(context.Background()))
}

func TestBlockUntilInitialisable(t *testing.T) {
	f := newFixture(t, "db", "migrations")
	f.report(t, "db", "ping", resource.HealthUnhealthy)
	require.NoError(t, f.registry.Register("db", "migrations", func(ctx context.Context, _ ExecutionContext) error {
		_, err := f.states.WaitForState(ctx, "migrations", resource.StateFinished)
		return err
	}))

	sub := f.coord.BlockUntilInitialisable(context.Background(), "db", "migrations")
	coordinated := make(chan error, 1)
	go func() { coordinated <- f.coord.Coordinate(context.Background(), "db") }()

	select {
	case <-sub.Done():
		t.Fatal("initializer resource released before the gate opened")
	case <-time.After(20 * time.Millisecond):
	}

	f.report(t, "db", "ping", resource.HealthHealthy)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sub.Wait(ctx))

	_, err := f.states.Transition("migrations", func(s resource.Snapshot) resource.Snapshot {
		s.State = resource.Finished
		return s
	})
	require.NoError(t, err)
	require.NoError(t, <-coordinated)
	assert.Equal(t, resource.Running, f.state("db"))
}
