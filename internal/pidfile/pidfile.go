// Package pidfile keeps a single server instance per data directory. The PID
// file holds "PID:TOKEN" and stays locked for the life of the process; the
// token lets [File.Release] avoid removing a file another instance rewrote.
package pidfile

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrLocked is returned by [Acquire] when another process holds the lock.
var ErrLocked = errors.New("pid file is locked by another process")

// File is a held PID file lock.
type File struct {
	path  string
	token string
	f     *os.File
}

// Acquire creates or opens path, takes an exclusive non-blocking lock, and
// writes this process's PID. A stale file left by a dead process is simply
// taken over, since its lock died with it.
func Acquire(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			if pid, ok := Holder(path); ok {
				return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock PID file: %w", err)
	}

	token := newToken()
	if err := f.Truncate(0); err != nil {
		unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &File{path: path, token: token, f: f}, nil
}

// Release unlocks and closes the file, then removes it if it still carries
// this instance's token.
func (p *File) Release() error {
	if p == nil || p.f == nil {
		return nil
	}
	unlockFile(p.f)
	closeErr := p.f.Close()
	p.f = nil

	data, err := os.ReadFile(p.path)
	if err != nil {
		return closeErr
	}
	if _, token, ok := strings.Cut(string(data), ":"); ok && token == p.token {
		if err := os.Remove(p.path); err != nil {
			return fmt.Errorf("remove PID file: %w", err)
		}
	}
	return closeErr
}

// Holder reads the PID recorded at path.
func Holder(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pidStr, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func newToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
