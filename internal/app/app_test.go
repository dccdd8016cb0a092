package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/loopchat"
	"tools.zach/dev/loopchat/internal/config"
)

// setup runs Setup in a temp dir and restores the slog default afterwards.
func setup(t *testing.T) *Env {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	env, err := Setup("server", filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func TestSetup_WritesDefaultConfig(t *testing.T) {
	env := setup(t)

	data, err := os.ReadFile(env.Dir.Config())
	require.NoError(t, err)
	assert.Equal(t, loopchat.DefaultConfigTOML, data)
	assert.Equal(t, config.DefaultConfig(), env.Config)
	assert.Equal(t, slog.LevelInfo, env.Level.Level())
}

func TestSetup_KeepsExistingConfig(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	custom := []byte("[server]\npool_size = 9\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), custom, 0o644))

	env, err := Setup("client", dir)
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, 9, env.Config.Server.PoolSize)
	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, custom, data)
}

func TestSetup_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[server]\nbogus = 1\n"), 0o644))

	_, err := Setup("server", dir)
	assert.ErrorContains(t, err, "load config")
}

func TestSetup_LogsToFile(t *testing.T) {
	env := setup(t)

	slog.Info("hello from test")
	data, err := os.ReadFile(env.Dir.Log("server"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] hello from test")
}

func TestWatchConfig_UpdatesLevel(t *testing.T) {
	env := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 4)
	require.NoError(t, env.WatchConfig(ctx, func(c *config.Config) { reloaded <- c }))

	cfg := config.DefaultConfig()
	cfg.Log.Level = "debug"
	require.NoError(t, cfg.Save(env.Dir.Config()))

	select {
	case got := <-reloaded:
		assert.Equal(t, "debug", got.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not delivered")
	}
	assert.Equal(t, slog.LevelDebug, env.Level.Level())
}

func TestReload_InvalidKeepsLevel(t *testing.T) {
	env := setup(t)
	require.NoError(t, os.WriteFile(env.Dir.Config(), []byte("[log]\nlevel = 3\n"), 0o644))

	called := false
	env.reload(func(*config.Config) { called = true })
	assert.False(t, called)
	assert.Equal(t, slog.LevelInfo, env.Level.Level())
}

func TestCheckForUpdate_DisabledWithoutURL(t *testing.T) {
	env := setup(t)
	// Returns without starting a request; nothing to observe but no panic.
	env.CheckForUpdate(context.Background(), "1.0.0")
}

func TestFatal(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	prevErr, prevExit := stderr, exit
	stderr, exit = &buf, func(c int) { code = c }
	defer func() { stderr, exit = prevErr, prevExit }()

	Fatal("listen", errors.New("address in use"))
	assert.Equal(t, 1, code)
	assert.Equal(t, "fatal: listen: address in use\n", buf.String())
}

func TestDefaultDataDir(t *testing.T) {
	assert.Equal(t, ".loopchat", filepath.Base(DefaultDataDir()))
}
