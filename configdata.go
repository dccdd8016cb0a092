// Package loopchat embeds the default configuration shipped with the
// loopchat binaries.
package loopchat

import _ "embed"

// DefaultConfigTOML is config.default.toml, copied to the data directory on
// first run.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
