// Package introspection describes an application topology: its resources, their
// initializers and probes, the dependency edges between them and the configuration
// keys that were read while starting.
package introspection

// Report aggregates introspection data for an application.
type Report struct {
	Configs   []ConfigAccess `json:"configs"`
	Resources []Resource     `json:"resources"`
	Edges     []Edge         `json:"edges"`
}

// ConfigAccess captures a single configuration key access.
type ConfigAccess struct {
	Key         string `json:"key"`
	Provider    string `json:"provider"`
	UsedDefault bool   `json:"usedDefault"`
	Component   string `json:"component"`
}

// Resource describes one resource of the topology.
type Resource struct {
	Name         string        `json:"name"`
	Runnable     string        `json:"runnable,omitempty"`
	State        string        `json:"state"`
	Probes       []string      `json:"probes"`
	Initializers []Initializer `json:"initializers"`
}

// Initializer describes an initializer registered for a resource.
type Initializer struct {
	Name  string `json:"name"`
	Probe string `json:"probe"`
	// Resource is set when the initializer is another resource of the topology.
	Resource string `json:"resource,omitempty"`
}

// EdgeKind describes why one resource waits for another.
type EdgeKind string

const (
	// EdgeWaitFor means the consumer does not start before the provider's initializers are terminal.
	EdgeWaitFor EdgeKind = "waitFor"
	// EdgeInitializer means the provider runs as an initializer of the consumer.
	EdgeInitializer EdgeKind = "initializer"
)

// Edge is a directed relation: Consumer depends on Provider.
type Edge struct {
	Consumer string   `json:"consumer"`
	Provider string   `json:"provider"`
	Kind     EdgeKind `json:"kind"`
}

// Resource returns the named resource of the report.
func (r Report) Resource(name string) (Resource, bool) {
	for _, res := range r.Resources {
		if res.Name == name {
			return res, true
		}
	}
	return Resource{}, false
}
