// pipe_windows.go serves and dials Windows named pipes (\\.\pipe\NAME) using
// the go-winio library.

//go:build windows

package transport

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
)

const pipeSupported = true

const pipePrefix = `\\.\pipe\`

// pipePath accepts either a bare pipe name or a full pipe path.
func pipePath(address string) string {
	if strings.HasPrefix(address, pipePrefix) {
		return address
	}
	return pipePrefix + address
}

func listenPipe(address string) (net.Listener, error) {
	return winio.ListenPipe(pipePath(address), &winio.PipeConfig{
		InputBufferSize:  4096,
		OutputBufferSize: 4096,
	})
}

func dialPipe(ctx context.Context, address string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, pipePath(address))
}
