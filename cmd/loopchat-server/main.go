// Package main implements the loopchat server: it accepts chat connections,
// prints every inbound message, and echoes its text back to the sender.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"tools.zach/dev/loopchat/internal/app"
	"tools.zach/dev/loopchat/internal/buildinfo"
	"tools.zach/dev/loopchat/internal/chat"
	"tools.zach/dev/loopchat/internal/config"
	"tools.zach/dev/loopchat/internal/pidfile"
	"tools.zach/dev/loopchat/internal/pool"
	"tools.zach/dev/loopchat/internal/server"
	"tools.zach/dev/loopchat/internal/shutdown"
	"tools.zach/dev/loopchat/internal/transport"
)

// ///////////////////////////////////////////////
// Flags
// ///////////////////////////////////////////////

// overrides holds command-line values that replace the [server] section.
// Zero values leave the config untouched.
type overrides struct {
	network string
	address string
	workers int
}

// apply copies the set fields onto cfg.Server and re-validates.
func (o overrides) apply(cfg *config.Config) error {
	if o.network != "" {
		cfg.Server.Network = o.network
	}
	if o.address != "" {
		cfg.Server.Address = o.address
	}
	if o.workers != 0 {
		cfg.Server.PoolSize = o.workers
	}
	return cfg.Validate()
}

// ///////////////////////////////////////////////
// Lifecycle
// ///////////////////////////////////////////////

// lifecycle serializes the two ways the server stops: a signal, where the
// coordinator has already drained and exits the process, and the accept loop
// returning on its own. Teardown runs once either way.
type lifecycle struct {
	// teardown closes the listener and releases process resources.
	teardown func()
	// exit ends the process; replaced in tests.
	exit func(code int)

	once      sync.Once
	signalled atomic.Bool
}

// close runs teardown once. Later calls wait for the first to finish.
func (l *lifecycle) close() {
	l.once.Do(l.teardown)
}

// shutdown is the coordinator's exit hook. Closing the listener here is what
// makes Serve return, so signalled is set first.
func (l *lifecycle) shutdown(code int) {
	l.signalled.Store(true)
	l.close()
	l.exit(code)
}

// serveReturned handles Serve returning. After a signal it does nothing and
// reports true: the coordinator already drained and is exiting. Otherwise it
// drains with fire and tears down.
func (l *lifecycle) serveReturned(fire func() int) bool {
	if l.signalled.Load() {
		return true
	}
	fmt.Println("Shutting down.")
	fire()
	l.close()
	return false
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", app.DefaultDataDir(), "Data directory for config, logs, and the PID file")
	var o overrides
	flag.StringVar(&o.network, "network", "", "Listen network: tcp, unix, or pipe (overrides server.network)")
	flag.StringVar(&o.address, "addr", "", "Listen address (overrides server.address)")
	flag.IntVar(&o.workers, "workers", 0, "Worker pool size (overrides server.pool_size)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	ver := buildinfo.Version()
	if *showVersion {
		fmt.Println(ver)
		return
	}

	env, err := app.Setup("server", *dataDir)
	if err != nil {
		app.Fatal("setup", err)
	}

	cfg := env.Config
	if err := o.apply(cfg); err != nil {
		app.Fatal("flags", err)
	}
	slog.Info("loopchat server starting", "version", ver, "data_dir", env.Dir.Root)

	pid, err := pidfile.Acquire(env.Dir.ServerPID())
	if err != nil {
		if errors.Is(err, pidfile.ErrLocked) {
			app.Fatal("server already running", err)
		}
		app.Fatal("pid file", err)
	}

	if cfg.Server.Network == transport.NetworkUnix {
		// The PID lock proves no other server owns the socket.
		if err := os.Remove(cfg.Server.Address); err == nil {
			slog.Info("removed stale socket", "path", cfg.Server.Address)
		}
	}

	ln, err := transport.Listen(cfg.Server.Network, cfg.Server.Address)
	if err != nil {
		pid.Release()
		app.Fatal("listen", err)
	}
	fmt.Printf("Server listening on %s\n", ln.Addr())

	workers, err := pool.New(cfg.Server.PoolSize)
	if err != nil {
		pid.Release()
		app.Fatal("worker pool", err)
	}
	registry := shutdown.NewRegistry()

	life := &lifecycle{
		teardown: func() {
			ln.Close()
			pid.Release()
			env.Close()
		},
		exit: os.Exit,
	}
	coordinator := shutdown.New(registry, workers, shutdown.WithExit(life.shutdown))
	stop := coordinator.Install()
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := env.WatchConfig(ctx, nil); err != nil {
		slog.Warn("config reload disabled", "error", err)
	}
	env.CheckForUpdate(ctx, ver)

	srv := server.New(ln, workers, registry,
		server.WithHandlerOptions(app.HandlerOptions(cfg.Connection)...),
		server.WithHandlerOptions(chat.WithPolicy(chat.Echo{Out: os.Stdout})),
	)
	if err := srv.Serve(); err != nil {
		slog.Error("accept loop failed", "error", err)
	}

	if life.serveReturned(coordinator.Fire) {
		// The signal path owns the exit code.
		select {}
	}
}
