package initgate

import (
	"context"

	"github.com/cleitonmarx/initgate/introspection"
)

// Runnable executes the long-lived process behind a resource.
// The context is canceled on app shutdown. Returning ends the resource: nil means
// Finished, any other error Exited.
type Runnable interface {
	Run(context.Context) error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(context.Context) error

// Run implements Runnable.
func (f RunnableFunc) Run(ctx context.Context) error { return f(ctx) }

// Closer releases resources and is called during graceful shutdown.
// Closers are invoked in LIFO (reverse registration) order.
type Closer interface {
	Close()
}

// ReadyChecker reports whether a runnable is ready to serve traffic.
// Runnables implementing it get a "<resource>-ready" health probe.
type ReadyChecker interface {
	IsReady(ctx context.Context) error
}

// ExitCoder is implemented by errors that carry a process exit code.
// Runnable errors without one exit with code 1.
type ExitCoder interface {
	ExitCode() int
}

// Introspector receives the topology report before resources start.
type Introspector interface {
	Introspect(context.Context, introspection.Report) error
}
