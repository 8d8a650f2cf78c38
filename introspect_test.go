package initgate

import (
	"context"
	"testing"
	"time"

	"github.com/cleitonmarx/initgate/depend"
	"github.com/cleitonmarx/initgate/health"
	"github.com/cleitonmarx/initgate/introspection"
	"github.com/cleitonmarx/initgate/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderIntrospector struct {
	Label     string `config:"REPORT_LABEL" default:"topology"`
	report    introspection.Report
	called    bool
	willErr   bool
	willPanic bool
}

func (r *recorderIntrospector) Introspect(_ context.Context, rep introspection.Report) error {
	if r.willPanic {
		panic("introspector panic")
	}
	r.report = rep
	r.called = true
	if r.willErr {
		return assert.AnError
	}
	return nil
}

type runnableIntrospector struct {
	Store     *store `resolve:""`
	report    introspection.Report
	runCalled bool
}

func (r *runnableIntrospector) Run(context.Context) error {
	r.runCalled = true
	return nil
}

func (r *runnableIntrospector) Introspect(_ context.Context, rep introspection.Report) error {
	r.report = rep
	return nil
}

func buildIntrospectedApp(app *App) *App {
	return app.
		Resource("db", WithProbes(health.NewToggle("ping", health.Healthy()))).
		Resource("migrate", WithRunnable(RunnableFunc(func(context.Context) error { return nil }))).
		Resource("api", WithRunnable(&server{ready: func() error { return nil }})).
		WithInitializer("db", "seed", noop).
		WithResourceInitializer("db", "migrate").
		WaitForInitialization("api", "db")
}

func TestApp_Report(t *testing.T) {
	app := buildIntrospectedApp(NewApp())
	report := app.Report()

	require.Len(t, report.Resources, 3)
	db, ok := report.Resource("db")
	require.True(t, ok)
	assert.Equal(t, resource.StateNotStarted, db.State)
	assert.Equal(t, []string{"ping"}, db.Probes)
	assert.Equal(t, []introspection.Initializer{
		{Name: "seed", Probe: "initializer-db-seed"},
		{Name: "migrate", Probe: "initializer-db-migrate", Resource: "migrate"},
	}, db.Initializers)

	api, ok := report.Resource("api")
	require.True(t, ok)
	assert.Equal(t, "*initgate.server", api.Runnable)
	assert.Equal(t, []string{"api-ready"}, api.Probes)

	migrate, ok := report.Resource("migrate")
	require.True(t, ok)
	assert.Contains(t, migrate.Runnable, "buildIntrospectedApp")

	assert.Equal(t, []introspection.Edge{
		{Consumer: "db", Provider: "migrate", Kind: introspection.EdgeInitializer},
		{Consumer: "api", Provider: "db", Kind: introspection.EdgeWaitFor},
	}, report.Edges)
	assert.Empty(t, report.Configs)
}

func TestApp_Introspect(t *testing.T) {
	tests := map[string]struct {
		intro     *recorderIntrospector
		expectErr string
	}{
		"success": {
			intro: &recorderIntrospector{},
		},
		"introspector_returns_error": {
			intro:     &recorderIntrospector{willErr: true},
			expectErr: assert.AnError.Error(),
		},
		"introspector_panics": {
			intro:     &recorderIntrospector{willPanic: true},
			expectErr: "panic in Introspect func: introspector panic",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			app, _ := newTestApp(t)
			buildIntrospectedApp(app).Introspect(tt.intro)

			ctx, cancel := testContext(t)
			errCh := app.RunAsync(ctx)
			if tt.expectErr != "" {
				err := <-errCh
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectErr)
				assert.Contains(t, err.Error(), "initgate.recorderIntrospector")
				requireState(t, app, "db", resource.StateNotStarted)
				return
			}

			require.NoError(t, app.WaitForReadiness(ctx, 2*time.Second))
			cancel()
			require.NoError(t, <-errCh)

			require.True(t, tt.intro.called)
			assert.Equal(t, "topology", tt.intro.Label)
			assert.Len(t, tt.intro.report.Resources, 3)
			keys := make(map[string]introspection.ConfigAccess)
			for _, c := range tt.intro.report.Configs {
				keys[c.Key] = c
			}
			assert.Equal(t, "initgate.mapProvider", keys["INITGATE_HEALTH_INTERVAL"].Provider)
			assert.True(t, keys["INITGATE_LOG_LEVEL"].UsedDefault)
			assert.Equal(t, "initgate.settings", keys["INITGATE_LOG_LEVEL"].Component)
			assert.True(t, keys["REPORT_LABEL"].UsedDefault)
			assert.Equal(t, "initgate.recorderIntrospector", keys["REPORT_LABEL"].Component)
		})
	}
}

func TestApp_RunnableIntrospector(t *testing.T) {
	services := depend.NewContainer()
	depend.Register(services, &store{name: "primary"})
	app, _ := newTestApp(t)
	r := &runnableIntrospector{}
	app.WithServices(services).
		Resource("worker", WithRunnable(r)).
		Introspect(r)

	ctx, _ := testContext(t)
	require.NoError(t, app.RunWithContext(ctx))
	assert.True(t, r.runCalled)
	require.NotNil(t, r.Store)
	assert.Equal(t, "primary", r.Store.name)
	worker, ok := r.report.Resource("worker")
	require.True(t, ok)
	assert.Equal(t, "*initgate.runnableIntrospector", worker.Runnable)
}
