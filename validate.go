package initgate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cleitonmarx/initgate/introspection"
)

// Validate reports registration errors and topology errors: references to unknown
// resources, resources waiting for themselves and dependency cycles. Run validates
// before starting anything.
func (a *App) Validate() error {
	errs := append([]error(nil), a.buildErrs...)

	reported := make(map[string]bool)
	unknown := func(name, role string) {
		if _, ok := a.byName[name]; ok || reported[name] {
			return
		}
		reported[name] = true
		errs = append(errs, fmt.Errorf("%w: %s references unknown resource %q", ErrInvalidTopology, role, name))
	}
	for _, target := range a.initializerTargets {
		unknown(target, "initializer")
	}
	for _, e := range a.edges {
		unknown(e.Consumer, string(e.Kind))
		unknown(e.Provider, string(e.Kind))
		if e.Consumer == e.Provider {
			errs = append(errs, fmt.Errorf("%w: resource %q depends on itself", ErrInvalidTopology, e.Consumer))
		}
	}

	if cycle := a.findCycle(); cycle != nil {
		errs = append(errs, fmt.Errorf("%w: dependency cycle %s", ErrInvalidTopology, strings.Join(cycle, " -> ")))
	}
	return errors.Join(errs...)
}

// phase is one step of a resource's startup: "start" is the resource being started
// and its readiness gate opening, "done" its initializers being terminal.
type phase struct {
	resource string
	done     bool
}

func (p phase) String() string {
	if p.done {
		return p.resource + ":initialized"
	}
	return p.resource + ":started"
}

// findCycle searches the startup phases for a wait cycle. An edge p -> q means p
// cannot happen before q. It returns the phases of the first cycle found, or nil.
func (a *App) findCycle() []string {
	adj := make(map[phase][]phase)
	link := func(from, to phase) {
		if _, ok := a.byName[from.resource]; !ok {
			return
		}
		if _, ok := a.byName[to.resource]; !ok {
			return
		}
		adj[from] = append(adj[from], to)
	}
	for _, spec := range a.resources {
		link(phase{spec.name, true}, phase{spec.name, false})
	}
	for _, e := range a.edges {
		if e.Consumer == e.Provider {
			continue
		}
		switch e.Kind {
		case introspection.EdgeWaitFor:
			link(phase{e.Consumer, false}, phase{e.Provider, true})
		case introspection.EdgeInitializer:
			link(phase{e.Consumer, true}, phase{e.Provider, true})
			link(phase{e.Provider, false}, phase{e.Consumer, false})
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	color := make(map[phase]int)
	var stack []phase
	var cycle []string
	var visit func(p phase) bool
	visit = func(p phase) bool {
		color[p] = visiting
		stack = append(stack, p)
		for _, next := range adj[p] {
			switch color[next] {
			case visiting:
				for i, s := range stack {
					if s == next {
						for _, c := range stack[i:] {
							cycle = append(cycle, c.String())
						}
						cycle = append(cycle, next.String())
						return true
					}
				}
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[p] = visited
		return false
	}
	for _, spec := range a.resources {
		for _, p := range []phase{{spec.name, false}, {spec.name, true}} {
			if color[p] == unvisited && visit(p) {
				return cycle
			}
		}
	}
	return nil
}
