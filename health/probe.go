// Package health evaluates resource health probes and publishes their results as
// health reports on the resource snapshot.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/cleitonmarx/initgate/resource"
)

// Result is the outcome of one probe evaluation.
type Result struct {
	Status      resource.HealthStatus
	Description string
	Err         error
}

// Healthy returns a healthy result.
func Healthy() Result {
	return Result{Status: resource.HealthHealthy}
}

// Degraded returns a degraded result with a reason.
func Degraded(description string) Result {
	return Result{Status: resource.HealthDegraded, Description: description}
}

// Unhealthy returns an unhealthy result with a reason and an optional error.
func Unhealthy(description string, err error) Result {
	if description == "" && err != nil {
		description = err.Error()
	}
	return Result{Status: resource.HealthUnhealthy, Description: description, Err: err}
}

// Report converts the result into a named health report.
func (r Result) Report(name string) resource.HealthReport {
	return resource.HealthReport{
		Name:        name,
		Status:      r.Status,
		Description: r.Description,
		Err:         r.Err,
	}
}

// Probe is a named health check. Check must be safe for concurrent use and honor ctx.
type Probe interface {
	Name() string
	Check(ctx context.Context) Result
}

// ProbeSource is implemented by components that contribute probes to a resource
// (HealthProbeSource).
type ProbeSource interface {
	Probes() []Probe
}

type funcProbe struct {
	name string
	fn   func(ctx context.Context) Result
}

// ProbeFunc adapts a function into a named Probe.
func ProbeFunc(name string, fn func(ctx context.Context) Result) Probe {
	return funcProbe{name: name, fn: fn}
}

func (p funcProbe) Name() string                     { return p.name }
func (p funcProbe) Check(ctx context.Context) Result { return p.fn(ctx) }

// ErrorProbe adapts an error-returning check: nil is Healthy, anything else Unhealthy.
func ErrorProbe(name string, check func(ctx context.Context) error) Probe {
	return ProbeFunc(name, func(ctx context.Context) Result {
		if err := check(ctx); err != nil {
			return Unhealthy("", err)
		}
		return Healthy()
	})
}

// SQLPing reports Healthy while the database answers pings.
func SQLPing(name string, db *sql.DB) Probe {
	return ErrorProbe(name, db.PingContext)
}

// HTTPGet reports Healthy while url answers with a 2xx status.
func HTTPGet(name, url string, client *http.Client) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return ErrorProbe(name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
		}
		return nil
	})
}

// Toggle is a probe whose result is set by the caller, for signals that are pushed
// rather than pulled.
type Toggle struct {
	name   string
	result atomic.Pointer[Result]
}

// NewToggle creates a Toggle that starts with the given result.
func NewToggle(name string, initial Result) *Toggle {
	t := &Toggle{name: name}
	t.Set(initial)
	return t
}

// Set replaces the result returned by the next checks.
func (t *Toggle) Set(r Result) {
	t.result.Store(&r)
}

// Name implements Probe.
func (t *Toggle) Name() string { return t.name }

// Check implements Probe.
func (t *Toggle) Check(context.Context) Result { return *t.result.Load() }
