// Package cli implements the initgate command line: it loads a topology file and
// validates it, renders it as a graph or runs its startup.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cleitonmarx/initgate"
	"github.com/cleitonmarx/initgate/config"
	"github.com/cleitonmarx/initgate/internal/topology"
	"github.com/cleitonmarx/initgate/introspection/mermaid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI is the root command configuration with subcommands.
type CLI struct {
	LogLevel  string           `kong:"short='l',help='Log level',enum='trace,debug,info,warn,error',default='info'"`
	LogFormat string           `kong:"help='Log format',enum='text,json',default='text'"`
	Run       RunCmd           `kong:"cmd,help='Start the topology and wait until every resource settled'"`
	Check     CheckCmd         `kong:"cmd,help='Validate the topology file'"`
	Graph     GraphCmd         `kong:"cmd,help='Print the topology as a Mermaid graph'"`
	Version   kong.VersionFlag `kong:"short='v',help='Show version and exit.'"`

	logger *logrus.Logger
}

// TopologyFlags select the topology file and its configuration.
type TopologyFlags struct {
	File   string `kong:"short='f',required,type='existingfile',help='Topology file'"`
	Config string `kong:"short='c',type='existingfile',help='YAML configuration file, environment variables take precedence'"`
}

// provider returns the configuration provider for the topology: environment variables,
// then the configuration file when one was given.
func (f TopologyFlags) provider() (config.Provider, error) {
	if f.Config == "" {
		return config.NewEnvVarProvider(), nil
	}
	file, err := config.NewYAMLFileProvider(f.Config)
	if err != nil {
		return nil, err
	}
	return config.NewCompositeProvider(config.NewEnvVarProvider(), file), nil
}

// build loads the topology and declares it on a new App. The returned function closes
// the handles opened for probes.
func (f TopologyFlags) build(ctx context.Context, logger *logrus.Logger) (*initgate.App, func() error, error) {
	p, err := f.provider()
	if err != nil {
		return nil, nil, err
	}
	file, err := topology.Load(ctx, f.File, p)
	if err != nil {
		return nil, nil, err
	}
	app := initgate.NewApp().WithConfig(p).WithLogger(logger)
	closeAll, err := file.Apply(app)
	if err != nil {
		return nil, nil, err
	}
	return app, closeAll, nil
}

// CheckCmd validates a topology without starting it.
type CheckCmd struct {
	TopologyFlags
}

// Run executes the check command.
func (c *CheckCmd) Run(ctx context.Context, kctx *kong.Context, cli *CLI) error {
	app, closeAll, err := c.build(ctx, cli.logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := app.Validate(); err != nil {
		return err
	}
	fmt.Fprintf(kctx.Stdout, "topology OK: %d resources\n", len(app.Report().Resources))
	return nil
}

// GraphCmd renders the topology.
type GraphCmd struct {
	TopologyFlags
}

// Run executes the graph command.
func (c *GraphCmd) Run(ctx context.Context, kctx *kong.Context, cli *CLI) error {
	app, closeAll, err := c.build(ctx, cli.logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := app.Validate(); err != nil {
		return err
	}
	_, err = io.WriteString(kctx.Stdout, mermaid.GenerateIntrospectionGraph(app.Report()))
	return err
}

// RunCmd starts the topology. It returns once every resource reached a settled state,
// or with the startup errors when one failed.
type RunCmd struct {
	TopologyFlags
	Timeout     time.Duration `kong:"help='Give up when the topology has not settled after this duration, 0 waits forever',default='0s'"`
	MetricsAddr string        `kong:"name='metrics-addr',help='Serve Prometheus metrics on this address while running'"`
}

// Run executes the run command.
func (c *RunCmd) Run(ctx context.Context, cli *CLI) error {
	app, closeAll, err := c.build(ctx, cli.logger)
	if err != nil {
		return err
	}
	defer closeAll()

	if c.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		app.WithMetrics(reg)

		_, stop, err := serveMetrics(c.MetricsAddr, reg, cli.logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if err := app.RunWithContext(ctx); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("topology did not settle within %s", c.Timeout)
	}
	return nil
}

// serveMetrics exposes reg on /metrics until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *logrus.Logger) (net.Addr, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.WithField("addr", ln.Addr().String()).Info("serving metrics")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	return ln.Addr(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// Execute parses args and runs the selected command. Command output is written to
// stdout and logs to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("initgate"),
		kong.Description("Coordinates the startup of the resources of a distributed application"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s) released on %s", version, commit, date),
		},
		kong.Writers(stdout, stderr),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cli.logger, err = newLogger(cli.LogLevel, cli.LogFormat, stderr)
	if err != nil {
		return err
	}
	return kctx.Run(&cli)
}

func newLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
