// Unix signal handling for coordinated shutdown.
//
// Both SIGINT (Ctrl+C) and SIGTERM, the signal sent by process managers and
// container runtimes, start a shutdown.

//go:build !windows

package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// signalChannel returns a buffered channel that receives SIGINT and SIGTERM.
// The buffer of 1 keeps a signal from being dropped while the coordinator is
// busy.
func signalChannel() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}
