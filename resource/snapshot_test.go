package resource

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Clone(t *testing.T) {
	now := time.Now()
	code := 3
	orig := Snapshot{
		Name:          "db",
		State:         Running,
		StartedAt:     &now,
		ExitCode:      &code,
		HealthReports: []HealthReport{{Name: "ping", Status: HealthHealthy}},
		Properties:    []Property{{Name: "k", Value: "v"}},
	}

	c := orig.Clone()
	c.HealthReports[0].Status = HealthUnhealthy
	c.Properties = append(c.Properties, Property{Name: "x"})
	*c.ExitCode = 9
	*c.StartedAt = now.Add(time.Hour)

	assert.Equal(t, HealthHealthy, orig.HealthReports[0].Status)
	assert.Len(t, orig.Properties, 1)
	assert.Equal(t, 3, *orig.ExitCode)
	assert.Equal(t, now, *orig.StartedAt)
}

func TestSnapshot_WithReport(t *testing.T) {
	s := New("db")
	s = s.WithReport(HealthReport{Name: "ping", Status: HealthUnknown})
	s = s.WithReport(HealthReport{Name: "ping", Status: HealthHealthy})
	s = s.WithReport(HealthReport{Name: "api", Status: HealthDegraded})

	require.Len(t, s.HealthReports, 2)
	r, ok := s.Report("ping")
	require.True(t, ok)
	assert.Equal(t, HealthHealthy, r.Status)
	assert.False(t, s.Healthy())
}

func TestHealthReport_Equal(t *testing.T) {
	tests := map[string]struct {
		a, b     HealthReport
		expected bool
	}{
		"same": {
			a:        HealthReport{Name: "p", Status: HealthHealthy},
			b:        HealthReport{Name: "p", Status: HealthHealthy},
			expected: true,
		},
		"different_status": {
			a: HealthReport{Name: "p", Status: HealthHealthy},
			b: HealthReport{Name: "p", Status: HealthDegraded},
		},
		"same_error_text": {
			a:        HealthReport{Name: "p", Err: errors.New("boom")},
			b:        HealthReport{Name: "p", Err: errors.New("boom")},
			expected: true,
		},
		"different_error": {
			a: HealthReport{Name: "p", Err: errors.New("boom")},
			b: HealthReport{Name: "p"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.a.Equal(tc.b))
		})
	}
}

func TestStateSnapshot_Terminal(t *testing.T) {
	assert.True(t, Running.IsTerminal())
	assert.True(t, FailedToInitialise.IsTerminal())
	assert.True(t, FailedToStart.IsStopped())
	assert.False(t, Waiting.IsTerminal())
	assert.False(t, Initializing.IsTerminal())
	assert.False(t, Running.IsStopped())
}
