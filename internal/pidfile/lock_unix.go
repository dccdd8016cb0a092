// flock(2) advisory locking for the PID file on non-Windows platforms.

//go:build !windows

package pidfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// errWouldBlock is what flock returns when LOCK_NB finds the lock held.
var errWouldBlock = unix.EWOULDBLOCK

func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
