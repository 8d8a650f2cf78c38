// Package resource defines the externally observed state of an application resource:
// its lifecycle state, health reports and start/stop bookkeeping.
package resource

import (
	"slices"
	"time"
)

// Known lifecycle states published for resources.
const (
	StateNotStarted         = "NotStarted"
	StateStarting           = "Starting"
	StateWaiting            = "Waiting"
	StateInitializing       = "Initializing"
	StateRunning            = "Running"
	StateFailedToInitialise = "FailedToInitialise"
	StateFailedToStart      = "FailedToStart"
	StateExited             = "Exited"
	StateFinished           = "Finished"
)

// Known state styles, used by renderers to pick a category for a state.
const (
	StyleInfo    = "info"
	StyleSuccess = "success"
	StyleWarn    = "warn"
	StyleError   = "error"
)

// StateSnapshot is a state text together with its display style.
type StateSnapshot struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

// Predefined state snapshots.
var (
	NotStarted         = StateSnapshot{Text: StateNotStarted, Style: StyleInfo}
	Starting           = StateSnapshot{Text: StateStarting, Style: StyleInfo}
	Waiting            = StateSnapshot{Text: StateWaiting, Style: StyleInfo}
	Initializing       = StateSnapshot{Text: StateInitializing, Style: StyleWarn}
	Running            = StateSnapshot{Text: StateRunning, Style: StyleSuccess}
	FailedToInitialise = StateSnapshot{Text: StateFailedToInitialise, Style: StyleError}
	FailedToStart      = StateSnapshot{Text: StateFailedToStart, Style: StyleError}
	Exited             = StateSnapshot{Text: StateExited, Style: StyleError}
	Finished           = StateSnapshot{Text: StateFinished, Style: StyleSuccess}
)

// IsStopped reports whether the state means the resource is no longer running
// and will not come back on its own.
func (s StateSnapshot) IsStopped() bool {
	switch s.Text {
	case StateFailedToStart, StateExited, StateFinished:
		return true
	}
	return false
}

// IsTerminal reports whether the state is terminal for a startup sequence.
func (s StateSnapshot) IsTerminal() bool {
	return s.IsStopped() || s.Text == StateRunning || s.Text == StateFailedToInitialise
}

// HealthStatus is the result category of a health probe.
type HealthStatus int

const (
	// HealthUnknown means the probe has not been evaluated yet.
	HealthUnknown HealthStatus = iota
	HealthUnhealthy
	HealthDegraded
	HealthHealthy
)

func (s HealthStatus) String() string {
	switch s {
	case HealthUnhealthy:
		return "Unhealthy"
	case HealthDegraded:
		return "Degraded"
	case HealthHealthy:
		return "Healthy"
	default:
		return "Unknown"
	}
}

// HealthReport is the latest result of one named probe.
type HealthReport struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	Err         error        `json:"-"`
}

// Equal compares two reports, including the text of their errors.
func (r HealthReport) Equal(other HealthReport) bool {
	return r.Name == other.Name &&
		r.Status == other.Status &&
		r.Description == other.Description &&
		errorText(r.Err) == errorText(other.Err)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Property is a free-form name/value pair attached to a resource.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Snapshot is an immutable view of a resource at one point in time.
// Publishers hand out clones; mutate only the value received in a transition function.
type Snapshot struct {
	Name          string         `json:"name"`
	State         StateSnapshot  `json:"state"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	StoppedAt     *time.Time     `json:"stoppedAt,omitempty"`
	ExitCode      *int           `json:"exitCode,omitempty"`
	HealthReports []HealthReport `json:"healthReports,omitempty"`
	Properties    []Property     `json:"properties,omitempty"`
	// Version increases by one with every published transition of the resource.
	Version       uint64         `json:"version"`
}

// New returns a snapshot for a resource that has not started yet.
func New(name string) Snapshot {
	return Snapshot{Name: name, State: NotStarted}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.StoppedAt != nil {
		t := *s.StoppedAt
		c.StoppedAt = &t
	}
	if s.ExitCode != nil {
		code := *s.ExitCode
		c.ExitCode = &code
	}
	c.HealthReports = slices.Clone(s.HealthReports)
	c.Properties = slices.Clone(s.Properties)
	return c
}

// Report returns the health report with the given name.
func (s Snapshot) Report(name string) (HealthReport, bool) {
	for _, r := range s.HealthReports {
		if r.Name == name {
			return r, true
		}
	}
	return HealthReport{}, false
}

// WithReport returns the snapshot with the named report inserted or replaced.
func (s Snapshot) WithReport(report HealthReport) Snapshot {
	for i, r := range s.HealthReports {
		if r.Name == report.Name {
			s.HealthReports[i] = report
			return s
		}
	}
	s.HealthReports = append(s.HealthReports, report)
	return s
}

// Property returns the value of the named property.
func (s Snapshot) Property(name string) (string, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Healthy reports whether every health report of the snapshot is Healthy.
func (s Snapshot) Healthy() bool {
	for _, r := range s.HealthReports {
		if r.Status != HealthHealthy {
			return false
		}
	}
	return true
}
