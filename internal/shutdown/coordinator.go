package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
)

// ExitCode is the process status used after a coordinated shutdown.
const ExitCode = 0

// Joiner is the part of the worker pool the coordinator drives.
// [pool.Pool] satisfies it.
type Joiner interface {
	// TryJoin stops the pool and waits for its workers, or returns false at
	// once if shutdown is already under way on another path.
	TryJoin() bool
}

// Coordinator translates an interrupt into per-connection and per-pool
// termination followed by process exit.
type Coordinator struct {
	registry *Registry
	pool     Joiner
	logger   *slog.Logger
	// exit ends the process; replaced in tests.
	exit func(code int)
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithExit replaces [os.Exit] as the final step of a shutdown.
func WithExit(exit func(code int)) Option {
	return func(c *Coordinator) {
		if exit != nil {
			c.exit = exit
		}
	}
}

// New builds a coordinator over registry and pool. pool may be nil for
// processes that have connections but no pool to drain.
func New(registry *Registry, pool Joiner, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		pool:     pool,
		logger:   slog.Default(),
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fire broadcasts [Terminate] to every registered connection and then drains
// the pool, unless the pool is already shutting down elsewhere, in which case
// it does not wait. It returns the number of connections signalled.
func (c *Coordinator) Fire() int {
	sent := c.registry.Broadcast()
	c.logger.Info("terminate sent to connections", "signalled", sent, "registered", c.registry.Len())

	if c.pool == nil {
		return sent
	}
	if c.pool.TryJoin() {
		c.logger.Info("worker pool joined")
	} else {
		c.logger.Warn("worker pool already shutting down, exiting without waiting")
	}
	return sent
}

// Run blocks on sig. Each received signal triggers [Coordinator.Fire]
// followed by process exit with [ExitCode]. Run returns when sig is closed.
func (c *Coordinator) Run(sig <-chan os.Signal) {
	for s := range sig {
		c.logger.Info("received shutdown signal", "signal", s.String())
		c.Fire()
		c.exit(ExitCode)
	}
}

// Install subscribes to the platform interrupt signals and runs the
// coordinator on its own goroutine. The returned function unsubscribes.
func (c *Coordinator) Install() (stop func()) {
	ch := signalChannel()
	go c.Run(ch)
	return func() {
		signal.Stop(ch)
	}
}
