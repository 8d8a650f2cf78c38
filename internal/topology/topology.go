// Package topology reads an application topology from a YAML file and declares it on
// an initgate.App: resources with their probes and initializers, and the edges between
// them.
package topology

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/cleitonmarx/initgate"
	"github.com/cleitonmarx/initgate/config"
	"github.com/cleitonmarx/initgate/health"
	"github.com/cleitonmarx/initgate/initializer"
	"github.com/cleitonmarx/initgate/migration"
	"github.com/cleitonmarx/initgate/resource"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"
)

// Probe and initializer kinds.
const (
	ProbeSQL  = "sql"
	ProbeHTTP = "http"

	InitializerMigrate = "migrate"
	InitializerSQL     = "sql"
)

const defaultHTTPTimeout = 5 * time.Second

// ErrInvalidFile matches every error found while validating a topology file.
var ErrInvalidFile = errors.New("topology: invalid file")

// File is a topology document.
type File struct {
	Resources []Resource `yaml:"resources"`
}

// Resource declares one resource.
type Resource struct {
	Name          string            `yaml:"name"`
	Properties    map[string]string `yaml:"properties"`
	Probes        []Probe           `yaml:"probes"`
	Initializers  []Initializer     `yaml:"initializers"`
	WaitFor       []string          `yaml:"waitFor"`
	InitializedBy []string          `yaml:"initializedBy"`
}

// Probe declares a health probe: a postgres ping (sql) or an HTTP GET (http).
type Probe struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"`
	DSN     string        `yaml:"dsn"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Initializer declares an initializer: golang-migrate up migrations (migrate) or SQL
// statements run in one transaction (sql).
type Initializer struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Source     string   `yaml:"source"`
	Database   string   `yaml:"database"`
	DSN        string   `yaml:"dsn"`
	Statements []string `yaml:"statements"`
}

// Load reads the topology file at path. ${KEY} references are expanded with values
// from p before parsing; unknown keys expand to an empty string.
func Load(ctx context.Context, path string, p config.Provider) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	if p != nil {
		data = []byte(os.Expand(string(data), func(key string) string {
			return config.GetWithDefault(ctx, p, key, "")
		}))
	}
	return Parse(data)
}

// Parse decodes and validates a topology document. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("topology: parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that every entry carries the fields its kind needs. References
// between resources are validated by the App.
func (f *File) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidFile, fmt.Sprintf(format, args...)))
	}
	for i, r := range f.Resources {
		if r.Name == "" {
			invalid("resource %d has no name", i)
			continue
		}
		for _, p := range r.Probes {
			switch {
			case p.Name == "":
				invalid("resource %q: probe without name", r.Name)
			case p.Kind == ProbeSQL && p.DSN == "":
				invalid("resource %q: sql probe %q needs a dsn", r.Name, p.Name)
			case p.Kind == ProbeHTTP && p.URL == "":
				invalid("resource %q: http probe %q needs a url", r.Name, p.Name)
			case p.Kind != ProbeSQL && p.Kind != ProbeHTTP:
				invalid("resource %q: probe %q has unknown kind %q", r.Name, p.Name, p.Kind)
			}
		}
		for _, in := range r.Initializers {
			switch {
			case in.Name == "":
				invalid("resource %q: initializer without name", r.Name)
			case in.Kind == InitializerMigrate && (in.Source == "" || in.Database == ""):
				invalid("resource %q: migrate initializer %q needs a source and a database", r.Name, in.Name)
			case in.Kind == InitializerSQL && (in.DSN == "" || len(in.Statements) == 0):
				invalid("resource %q: sql initializer %q needs a dsn and statements", r.Name, in.Name)
			case in.Kind != InitializerMigrate && in.Kind != InitializerSQL:
				invalid("resource %q: initializer %q has unknown kind %q", r.Name, in.Name, in.Kind)
			}
		}
	}
	return errors.Join(errs...)
}

// Apply declares every resource of the file on app. The returned function closes the
// database handles opened for sql probes.
func (f *File) Apply(app *initgate.App) (func() error, error) {
	var dbs []*sql.DB
	closeAll := func() error {
		var errs []error
		for _, db := range dbs {
			errs = append(errs, db.Close())
		}
		return errors.Join(errs...)
	}

	for _, r := range f.Resources {
		probes := make([]health.Probe, 0, len(r.Probes))
		for _, p := range r.Probes {
			switch p.Kind {
			case ProbeSQL:
				db, err := sql.Open("postgres", p.DSN)
				if err != nil {
					_ = closeAll()
					return nil, fmt.Errorf("topology: resource %q probe %q: %w", r.Name, p.Name, err)
				}
				dbs = append(dbs, db)
				probes = append(probes, health.SQLPing(p.Name, db))
			case ProbeHTTP:
				timeout := p.Timeout
				if timeout <= 0 {
					timeout = defaultHTTPTimeout
				}
				probes = append(probes, health.HTTPGet(p.Name, p.URL, &http.Client{Timeout: timeout}))
			}
		}
		app.Resource(r.Name, initgate.WithProbes(probes...), initgate.WithProperties(properties(r.Properties)...))
	}

	for _, r := range f.Resources {
		for _, in := range r.Initializers {
			app.WithInitializer(r.Name, in.Name, in.action())
		}
		for _, provider := range r.WaitFor {
			app.WaitForInitialization(r.Name, provider)
		}
		for _, initRes := range r.InitializedBy {
			app.WithResourceInitializer(r.Name, initRes)
		}
	}
	return closeAll, nil
}

func (in Initializer) action() initializer.Action {
	switch in.Kind {
	case InitializerMigrate:
		return migration.Up(migration.FromURLs(in.Source, in.Database))
	case InitializerSQL:
		return migration.PostgresStatements(in.DSN, in.Statements...)
	}
	return nil
}

func properties(m map[string]string) []resource.Property {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	props := make([]resource.Property, 0, len(names))
	for _, name := range names {
		props = append(props, resource.Property{Name: name, Value: m[name]})
	}
	return props
}
