// LockFileEx locking for the PID file on Windows. The locked byte sits far
// past the end of the file so other processes can still read the PID.

//go:build windows

package pidfile

import (
	"os"

	"golang.org/x/sys/windows"
)

// errWouldBlock is what LockFileEx returns with LOCKFILE_FAIL_IMMEDIATELY
// when another handle holds the lock.
var errWouldBlock = windows.ERROR_LOCK_VIOLATION

// lockRegion returns the overlapped offset of the single locked byte.
func lockRegion() *windows.Overlapped {
	return &windows.Overlapped{OffsetHigh: 0x7fffffff}
}

func lockFile(f *os.File) error {
	return windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		1, 0,
		lockRegion(),
	)
}

func unlockFile(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, lockRegion())
}
