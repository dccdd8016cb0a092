// Package buildinfo reports the version string of the running binary.
package buildinfo

import "runtime/debug"

// version is set at build time via ldflags:
//
//	-X tools.zach/dev/loopchat/internal/buildinfo.version=1.2.0
//
// Bare go build leaves it as "dev" and [Version] falls back to the VCS info
// the toolchain embeds.
var version = "dev"

// Version returns the ldflags version if one was set, otherwise "dev",
// "dev+<hash>", or "dev+<hash>.dirty" from the embedded build settings.
func Version() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	return fromSettings(info.Settings)
}

func fromSettings(settings []debug.BuildSetting) string {
	var revision string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}
