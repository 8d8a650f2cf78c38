package mermaid

import (
	"strings"
	"testing"

	"github.com/cleitonmarx/initgate/introspection"
	"github.com/stretchr/testify/assert"
)

func TestGenerateIntrospectionGraph(t *testing.T) {
	report := introspection.Report{
		Configs: []introspection.ConfigAccess{
			{Key: "INITGATE_LOG_LEVEL", UsedDefault: true},
			{Key: "INITGATE_HEALTH_INTERVAL", Provider: "config.EnvVarProvider"},
			{Key: "INITGATE_HEALTH_INTERVAL", Provider: "config.EnvVarProvider"},
		},
		Resources: []introspection.Resource{
			{
				Name:   "db",
				State:  "Running",
				Probes: []string{"ping"},
				Initializers: []introspection.Initializer{
					{Name: "seed", Probe: "initializer-db-seed"},
					{Name: "migrations", Probe: "initializer-db-migrations", Resource: "migrations"},
				},
			},
			{Name: "migrations", State: "Finished", Runnable: "main.migrator"},
			{Name: "app", State: "FailedToStart"},
		},
		Edges: []introspection.Edge{
			{Consumer: "app", Provider: "db", Kind: introspection.EdgeWaitFor},
			{Consumer: "db", Provider: "migrations", Kind: introspection.EdgeInitializer},
		},
	}

	out := GenerateIntrospectionGraph(report)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "db --> app")
	assert.Contains(t, out, "migrations -.->|initializes| db")
	assert.Contains(t, out, "db__seed --o db")
	assert.NotContains(t, out, "db__migrations")
	assert.Contains(t, out, "INITGATE_LOG_LEVEL -.-> InitgateApp")
	assert.Equal(t, 1, strings.Count(out, "INITGATE_HEALTH_INTERVAL -.-> InitgateApp"))
	assert.Contains(t, out, "style app "+styleFailed.ToCSS())
	assert.Contains(t, out, "style db "+styleRunning.ToCSS())
	assert.Contains(t, out, "main.migrator")
}
