// Package transport opens chat listeners and connections over the stream
// networks loopchat supports: TCP, Unix domain sockets, and Windows named
// pipes.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Supported network names.
const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
	NetworkPipe = "pipe"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 5 * time.Second

// ErrUnsupportedNetwork is returned for unknown network names and for named
// pipes on platforms other than Windows.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// ///////////////////////////////////////////////
// Listen / Dial
// ///////////////////////////////////////////////

// Listen opens a stream listener on address.
func Listen(network, address string) (net.Listener, error) {
	switch network {
	case NetworkTCP, NetworkUnix:
		ln, err := net.Listen(network, address)
		if err != nil {
			return nil, fmt.Errorf("listening on %s %s: %w", network, address, err)
		}
		return ln, nil
	case NetworkPipe:
		ln, err := listenPipe(address)
		if err != nil {
			return nil, fmt.Errorf("listening on pipe %s: %w", address, err)
		}
		return ln, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

// Dial connects to address, giving up after [DefaultDialTimeout] or when ctx
// is done.
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	switch network {
	case NetworkTCP, NetworkUnix:
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s %s: %w", network, address, err)
		}
		return conn, nil
	case NetworkPipe:
		conn, err := dialPipe(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("connecting to pipe %s: %w", address, err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

// Valid reports whether network is one [Listen] and [Dial] understand on this
// platform.
func Valid(network string) bool {
	switch network {
	case NetworkTCP, NetworkUnix:
		return true
	case NetworkPipe:
		return pipeSupported
	}
	return false
}
