// Package config loads, validates and saves loopchat's TOML configuration.
//
// The file lives at <data-dir>/config.toml. Missing keys keep their defaults,
// so a config file only needs the values a user wants to change.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/loopchat/internal/atomicfile"
	"tools.zach/dev/loopchat/internal/paths"
	"tools.zach/dev/loopchat/internal/transport"
)

// DefaultAddress is where the server listens and the client connects unless
// configured otherwise.
const DefaultAddress = "127.0.0.1:8080"

// Client chat modes.
const (
	ModeAsk    = "ask"
	ModePacket = "packet"
	ModeRaw    = "raw"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level configuration shared by all loopchat
// binaries.
type Config struct {
	// Server holds the chat server's listener and pool settings.
	Server ServerConfig `toml:"server"`
	// Client holds the interactive client's settings.
	Client ClientConfig `toml:"client"`
	// Connection holds the handler loop tuning shared by both ends.
	Connection ConnectionConfig `toml:"connection"`
	// Copy holds the parallel copier's settings.
	Copy CopyConfig `toml:"copy"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Update holds the release check settings.
	Update UpdateConfig `toml:"update"`
}

// ServerConfig holds the chat server's listener and pool settings.
type ServerConfig struct {
	// Network is "tcp", "unix", or "pipe" (Windows only).
	Network string `toml:"network"`
	// Address is the listen address, socket path, or pipe name.
	Address string `toml:"address"`
	// PoolSize is the number of workers, which caps concurrent connections.
	PoolSize int `toml:"pool_size"`
}

// ClientConfig holds the interactive client's settings.
type ClientConfig struct {
	// Network is "tcp", "unix", or "pipe" (Windows only).
	Network string `toml:"network"`
	// Address is the server address to connect to.
	Address string `toml:"address"`
	// PoolSize is the number of client workers.
	PoolSize int `toml:"pool_size"`
	// Mode is "ask" (prompt at start), "packet", or "raw".
	Mode string `toml:"mode"`
	// ID is the sender id used in packet mode; empty means prompt or fall
	// back to the local address.
	ID string `toml:"id,omitempty"`
}

// ConnectionConfig holds the handler loop tuning shared by both ends.
type ConnectionConfig struct {
	// ReadTimeoutMS bounds each read and therefore termination latency.
	ReadTimeoutMS int `toml:"read_timeout_ms"`
	// IdleDelayMS is slept after a read that returned nothing.
	IdleDelayMS int `toml:"idle_delay_ms"`
	// BufferSize is the read buffer size in bytes.
	BufferSize int `toml:"buffer_size"`
}

// ReadTimeout returns ReadTimeoutMS as a duration.
func (c ConnectionConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// IdleDelay returns IdleDelayMS as a duration.
func (c ConnectionConfig) IdleDelay() time.Duration {
	return time.Duration(c.IdleDelayMS) * time.Millisecond
}

// CopyConfig holds the parallel copier's settings.
type CopyConfig struct {
	// Workers is the copier's pool size.
	Workers int `toml:"workers"`
	// ChunkSizeKB is the size of each copied range; 0 splits the file into
	// one range per worker.
	ChunkSizeKB int `toml:"chunk_size_kb"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Console mirrors log lines to stderr.
	Console bool `toml:"console"`
}

// UpdateConfig holds the release check settings.
type UpdateConfig struct {
	// ManifestURL points at a JSON release manifest; empty disables the check.
	ManifestURL string `toml:"manifest_url"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Network:  transport.NetworkTCP,
			Address:  DefaultAddress,
			PoolSize: 4,
		},
		Client: ClientConfig{
			Network:  transport.NetworkTCP,
			Address:  DefaultAddress,
			PoolSize: 2,
			Mode:     ModeAsk,
		},
		Connection: ConnectionConfig{
			ReadTimeoutMS: 100,
			IdleDelayMS:   10,
			BufferSize:    1024,
		},
		Copy: CopyConfig{
			Workers:     4,
			ChunkSizeKB: 0,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			Console:   false,
		},
	}
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses dataDir/config.toml on top of [DefaultConfig]. If the
// file does not exist the defaults are returned.
func Load(dataDir string) (*Config, error) {
	return LoadFile(filepath.Join(dataDir, paths.ConfigFile))
}

// LoadFile is [Load] for an explicit file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data on top of [DefaultConfig] and validates the result.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse config: unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using an atomic file write.
func (c *Config) Save(path string) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	})
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !transport.Valid(c.Server.Network) {
		return fmt.Errorf("invalid server.network %q: %w", c.Server.Network, transport.ErrUnsupportedNetwork)
	}
	if c.Server.Address == "" {
		return errors.New("server.address must not be empty")
	}
	if c.Server.PoolSize <= 0 {
		return fmt.Errorf("server.pool_size must be > 0, got %d", c.Server.PoolSize)
	}

	if !transport.Valid(c.Client.Network) {
		return fmt.Errorf("invalid client.network %q: %w", c.Client.Network, transport.ErrUnsupportedNetwork)
	}
	if c.Client.Address == "" {
		return errors.New("client.address must not be empty")
	}
	if c.Client.PoolSize <= 0 {
		return fmt.Errorf("client.pool_size must be > 0, got %d", c.Client.PoolSize)
	}
	switch c.Client.Mode {
	case ModeAsk, ModePacket, ModeRaw:
	default:
		return fmt.Errorf("invalid client.mode %q: must be ask, packet, or raw", c.Client.Mode)
	}

	if c.Connection.ReadTimeoutMS <= 0 {
		return fmt.Errorf("connection.read_timeout_ms must be > 0, got %d", c.Connection.ReadTimeoutMS)
	}
	if c.Connection.IdleDelayMS < 0 {
		return fmt.Errorf("connection.idle_delay_ms must be >= 0, got %d", c.Connection.IdleDelayMS)
	}
	if c.Connection.BufferSize <= 0 {
		return fmt.Errorf("connection.buffer_size must be > 0, got %d", c.Connection.BufferSize)
	}

	if c.Copy.Workers <= 0 {
		return fmt.Errorf("copy.workers must be > 0, got %d", c.Copy.Workers)
	}
	if c.Copy.ChunkSizeKB < 0 {
		return fmt.Errorf("copy.chunk_size_kb must be >= 0, got %d", c.Copy.ChunkSizeKB)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if c.Update.ManifestURL != "" {
		u, err := url.Parse(c.Update.ManifestURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid update.manifest_url %q: must be an http(s) URL", c.Update.ManifestURL)
		}
	}

	return nil
}
