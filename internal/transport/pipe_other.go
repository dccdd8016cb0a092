//go:build !windows

package transport

import (
	"context"
	"net"
)

const pipeSupported = false

func listenPipe(string) (net.Listener, error) {
	return nil, ErrUnsupportedNetwork
}

func dialPipe(context.Context, string) (net.Conn, error) {
	return nil, ErrUnsupportedNetwork
}
