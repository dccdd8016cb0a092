// Package app holds the start-up sequence shared by the loopchat binaries:
// data directory, default config, logger, live config reload, and the
// release check.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"tools.zach/dev/loopchat"
	"tools.zach/dev/loopchat/internal/atomicfile"
	"tools.zach/dev/loopchat/internal/chat"
	"tools.zach/dev/loopchat/internal/config"
	"tools.zach/dev/loopchat/internal/logger"
	"tools.zach/dev/loopchat/internal/paths"
	"tools.zach/dev/loopchat/internal/update"
)

// Overridden in tests.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// Env is the process environment every binary starts from.
type Env struct {
	// Dir is the data directory holding config, logs and the PID file.
	Dir paths.DataDir
	// Config is the configuration loaded at start-up. Reloads are delivered
	// to the [Env.WatchConfig] callback instead of replacing it.
	Config *config.Config
	// Level is the live log level; reloads update it in place.
	Level *slog.LevelVar
	// Logger writes to the binary's rotating log file.
	Logger *slog.Logger

	closer io.Closer
}

// DefaultDataDir returns ~/.loopchat, or ./.loopchat if the home directory
// cannot be determined.
func DefaultDataDir() string {
	d, err := paths.Default()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return d.Root
}

// Setup prepares dataDir, writes the default config on first run, loads the
// config, and opens the log file for binary ("server", "client" or "copy").
// The returned logger is also installed as the slog default.
func Setup(binary, dataDir string) (*Env, error) {
	d := paths.DataDir{Root: dataDir}
	if err := d.Ensure(); err != nil {
		return nil, err
	}

	if _, err := atomicfile.WriteIfMissing(d.Config(), loopchat.DefaultConfigTOML, 0o644); err != nil {
		fmt.Fprintf(stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := config.Load(d.Root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(logger.ParseLevel(cfg.Log.Level))
	log, closer := logger.NewLogger(logger.Options{
		Path:      d.Log(binary),
		Level:     level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   cfg.Log.Console,
		Stderr:    stderr,
	})
	slog.SetDefault(log)

	return &Env{Dir: d, Config: cfg, Level: level, Logger: log, closer: closer}, nil
}

// Close closes the log file.
func (e *Env) Close() error {
	return e.closer.Close()
}

// ///////////////////////////////////////////////
// Config Reload
// ///////////////////////////////////////////////

// WatchConfig reloads the config file whenever it changes until ctx is
// done. Each valid reload updates [Env.Level] and is passed to onReload, which
// may be nil. Invalid edits are logged and ignored.
func (e *Env) WatchConfig(ctx context.Context, onReload func(*config.Config)) error {
	w, err := config.NewWatcher(e.Dir.Config(), config.WithWatcherLogger(e.Logger))
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	if w.Polling() {
		e.Logger.Info("using polling mode for config reload")
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.Events():
				e.reload(onReload)
			}
		}
	}()
	return nil
}

func (e *Env) reload(onReload func(*config.Config)) {
	cfg, err := config.LoadFile(e.Dir.Config())
	if err != nil {
		e.Logger.Warn("config reload rejected, keeping previous settings", "error", err)
		return
	}
	level := logger.ParseLevel(cfg.Log.Level)
	if level != e.Level.Level() {
		e.Logger.Info("log level changed", "level", cfg.Log.Level)
		e.Level.Set(level)
	}
	if onReload != nil {
		onReload(cfg)
	}
}

// ///////////////////////////////////////////////
// Release Check
// ///////////////////////////////////////////////

// CheckForUpdate runs a release check in the background when a manifest URL
// is configured. The result is only logged.
func (e *Env) CheckForUpdate(ctx context.Context, version string) {
	url := e.Config.Update.ManifestURL
	if url == "" {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.Logger.Error("update check panic", "error", r)
			}
		}()
		update.NewChecker(url, update.WithLogger(e.Logger)).Notify(ctx, version)
	}()
}

// ///////////////////////////////////////////////
// Fatal Errors
// ///////////////////////////////////////////////

// Fatal prints "fatal: what: err" to stderr and exits with status 1.
func Fatal(what string, err error) {
	fmt.Fprintf(stderr, "fatal: %s: %v\n", what, err)
	exit(1)
}

// ///////////////////////////////////////////////
// Handler Settings
// ///////////////////////////////////////////////

// HandlerOptions maps the [connection] section onto handler options.
func HandlerOptions(c config.ConnectionConfig) []chat.Option {
	return []chat.Option{
		chat.WithReadTimeout(c.ReadTimeout()),
		chat.WithIdleDelay(c.IdleDelay()),
		chat.WithBufferSize(c.BufferSize),
	}
}
