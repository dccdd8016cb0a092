// Package paths centralizes the file names that live in the loopchat data
// directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	ConfigFile    = "config.toml"
	ServerPIDFile = "server.pid"
	ServerLogFile = "server.log"
	ClientLogFile = "client.log"
	CopyLogFile   = "copy.log"
)

// DataDirRel is the default data directory relative to $HOME.
const DataDirRel = ".loopchat"

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Default returns the data directory under the user's home directory.
func Default() (DataDir, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{}, fmt.Errorf("resolving home directory: %w", err)
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}, nil
}

// Ensure creates the data directory if it does not exist.
func (d DataDir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// ServerPID returns the full path to the server's PID file.
func (d DataDir) ServerPID() string { return filepath.Join(d.Root, ServerPIDFile) }

// Log returns the full path to the log file for the named binary
// ("server", "client" or "copy").
func (d DataDir) Log(binary string) string {
	switch binary {
	case "server":
		return filepath.Join(d.Root, ServerLogFile)
	case "client":
		return filepath.Join(d.Root, ClientLogFile)
	case "copy":
		return filepath.Join(d.Root, CopyLogFile)
	}
	return filepath.Join(d.Root, binary+".log")
}
