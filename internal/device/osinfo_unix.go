//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package device

import "golang.org/x/sys/unix"

// osInfo returns the kernel name and release from uname(2).
func osInfo() (name, version string) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return osName(), ""
	}
	return unix.ByteSliceToString(u.Sysname[:]), unix.ByteSliceToString(u.Release[:])
}
