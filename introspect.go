package initgate

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cleitonmarx/initgate/config"
	"github.com/cleitonmarx/initgate/initializer"
	"github.com/cleitonmarx/initgate/internal/reflectx"
	"github.com/cleitonmarx/initgate/introspection"
)

// Introspect registers an introspector for the application's lifecycle.
// Multiple calls append introspectors in registration order.
// Introspectors are called after validation and before any resource starts.
func (a *App) Introspect(i Introspector) *App {
	if i == nil {
		return a
	}
	a.introspectors = append(a.introspectors, i)
	return a
}

// Report describes the declared topology together with the current state of each
// resource. Configuration accesses are only known while the app runs and are left
// empty.
func (a *App) Report() introspection.Report {
	report := introspection.Report{
		Configs:   []introspection.ConfigAccess{},
		Resources: make([]introspection.Resource, 0, len(a.resources)),
		Edges:     append([]introspection.Edge{}, a.edges...),
	}

	resourceInits := make(map[string]map[string]bool)
	for _, e := range a.edges {
		if e.Kind != introspection.EdgeInitializer {
			continue
		}
		if resourceInits[e.Consumer] == nil {
			resourceInits[e.Consumer] = make(map[string]bool)
		}
		resourceInits[e.Consumer][e.Provider] = true
	}

	for _, spec := range a.resources {
		res := introspection.Resource{
			Name:         spec.name,
			Probes:       []string{},
			Initializers: []introspection.Initializer{},
		}
		if snap, ok := a.states.Get(spec.name); ok {
			res.State = snap.State.Text
		}
		if spec.runnable != nil {
			res.Runnable, _ = reflectx.ComponentName(spec.runnable)
		}
		for _, p := range spec.allProbes() {
			res.Probes = append(res.Probes, p.Name())
		}
		for _, d := range a.registry.List(spec.name) {
			init := introspection.Initializer{Name: d.Name, Probe: initializer.ProbeName(spec.name, d.Name)}
			if resourceInits[spec.name][d.Name] {
				init.Resource = d.Name
			}
			res.Initializers = append(res.Initializers, init)
		}
		report.Resources = append(report.Resources, res)
	}
	return report
}

// introspect hands the report to every introspector.
func (a *App) introspect(ctx context.Context, inspector *config.Inspector) error {
	if len(a.introspectors) == 0 {
		return nil
	}
	report := a.Report()
	for _, k := range inspector.Accesses() {
		report.Configs = append(report.Configs, introspection.ConfigAccess{
			Key:         k.Key,
			Provider:    k.Provider,
			UsedDefault: k.Default,
			Component:   k.Component,
		})
	}
	for _, i := range a.introspectors {
		if reflectx.IsPointerStruct(reflect.ValueOf(i)) {
			if err := reflectx.IterateStructFields(i, a.services.ResolveStructFieldValue); err != nil {
				return NewError(err, i)
			}
		}
		if err := introspectSafe(ctx, i, report); err != nil {
			return err
		}
	}
	return nil
}

// introspectSafe calls the provided Introspector's Introspect method safely,
// recovering from panics and wrapping errors with context about the introspector.
func introspectSafe(ctx context.Context, i Introspector, r introspection.Report) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewError(fmt.Errorf("panic in Introspect func: %v", rec), i)
		}
	}()
	err = i.Introspect(ctx, r)
	if err != nil {
		err = NewError(err, i)
	}
	return err
}
