// Tests for the config [Watcher]: fsnotify delivery, atomic-save detection,
// polling fallback, and idempotent close.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/loopchat/internal/paths"
)

func waitEvent(t *testing.T, w *Watcher, timeout time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(timeout):
		t.Fatalf("no change event within %v (polling=%v)", timeout, w.Polling())
	}
}

func TestWatcher_DetectsSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), paths.ConfigFile)

	w, err := NewWatcher(path, WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	cfg := DefaultConfig()
	cfg.Log.Level = "debug"
	require.NoError(t, cfg.Save(path))
	waitEvent(t, w, 2*time.Second)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(filepath.Join(dir, paths.ConfigFile))
	require.NoError(t, err)
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.log"), []byte("noise"), 0o644))
	select {
	case <-w.Events():
		t.Fatal("unexpected event for an unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_PollingFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), paths.ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	w, err := NewWatcher(path, WithForcePolling(), WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()
	require.True(t, w.Polling(), "expected polling mode")

	// Size changes even if the mtime granularity is coarse.
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644))
	waitEvent(t, w, time.Second)
}

func TestWatcher_PollingReportsWriteRightAfterStart(t *testing.T) {
	// The write lands before the polling goroutine has had a chance to run;
	// it must still be compared against the state at NewWatcher time.
	for i := 0; i < 10; i++ {
		i := i
		path := filepath.Join(t.TempDir(), paths.ConfigFile)
		require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

		w, err := NewWatcher(path, WithForcePolling(), WithPollInterval(10*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("round %d", i)), 0o644))

		select {
		case <-w.Events():
		case <-time.After(time.Second):
			w.Close()
			t.Fatalf("round %d: change written right after start was lost", i)
		}
		w.Close()
	}
}

func TestWatcher_PollingReportsCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), paths.ConfigFile)

	w, err := NewWatcher(path, WithForcePolling(), WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[log]\n"), 0o644))
	waitEvent(t, w, time.Second)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", paths.ConfigFile))
	assert.Error(t, err)
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), paths.ConfigFile))
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
