package initializer

import (
	"context"

	"github.com/cleitonmarx/initgate/health"
)

const probePrefix = "initializer-"

// ProbeName is the health probe name reporting an initializer of a resource.
func ProbeName(res, name string) string {
	return probePrefix + res + "-" + name
}

// runtimeProbe reports the runtime state of one initializer as a health result.
type runtimeProbe struct {
	name string
	cell *runtimeCell
}

func (p runtimeProbe) Name() string { return p.name }

func (p runtimeProbe) Check(context.Context) health.Result {
	return ProbeResult(p.cell.Load())
}

// ProbeResult maps an initializer runtime state to a health result.
func ProbeResult(s RuntimeState) health.Result {
	switch s.Phase {
	case Running:
		return health.Degraded("waiting to complete")
	case Complete:
		return health.Healthy()
	case Failed:
		return health.Unhealthy("", s.Err)
	default:
		return health.Unhealthy("waiting to start", nil)
	}
}
