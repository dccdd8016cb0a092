//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package device

func osInfo() (name, version string) {
	return osName(), ""
}
