// Package chat implements the per-connection handler loop shared by the chat
// server and client.
//
// A [Handler] owns one connection and a termination channel. It polls in a
// tight loop: check for [shutdown.Terminate], read with a short deadline,
// hand any data to its [Policy], then send at most one queued outbound
// payload. The read deadline bounds how long termination can go unnoticed.
package chat

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"tools.zach/dev/loopchat/internal/logger"
	"tools.zach/dev/loopchat/internal/packet"
	"tools.zach/dev/loopchat/internal/shutdown"
)

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

const (
	// DefaultReadTimeout bounds each read and therefore termination latency.
	DefaultReadTimeout = 100 * time.Millisecond
	// DefaultIdleDelay is slept after a read that returned nothing.
	DefaultIdleDelay = 10 * time.Millisecond
	// DefaultBufferSize is the size of the reusable read buffer. Packet
	// frames larger than this span several reads and are reassembled.
	DefaultBufferSize = 1024

	// heldFrameTimeout is how long a partial frame waits for its remainder
	// before the held bytes are handled as raw text.
	heldFrameTimeout = time.Second
)

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// Handler runs the loop for one connection. It implements [pool.Job].
type Handler struct {
	// conn is owned exclusively by the handler and closed when Run returns.
	conn net.Conn
	// term delivers [shutdown.Terminate] from the coordinator.
	term <-chan shutdown.Signal
	// outbound, if non-nil, carries encoded payloads to write to conn.
	outbound <-chan []byte
	// policy decides what to do with inbound messages.
	policy Policy

	readTimeout time.Duration
	idleDelay   time.Duration
	bufferSize  int

	logger *slog.Logger
	// peer labels log lines and printed messages.
	peer string

	// held is a packet frame cut short by the read buffer, waiting for the
	// rest of its payload; heldSince is when it was first held.
	held      []byte
	heldSince time.Time
}

// Option configures a [Handler].
type Option func(*Handler)

// WithPolicy sets the inbound response policy. Defaults to [Echo] with no
// printed output.
func WithPolicy(p Policy) Option {
	return func(h *Handler) {
		if p != nil {
			h.policy = p
		}
	}
}

// WithOutbound sets the channel of payloads the handler writes to the peer.
// Payloads are sent as-is, so callers encode them first.
func WithOutbound(ch <-chan []byte) Option {
	return func(h *Handler) { h.outbound = ch }
}

// WithReadTimeout sets the per-read deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.readTimeout = d
		}
	}
}

// WithIdleDelay sets the pause after an empty read.
func WithIdleDelay(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.idleDelay = d
		}
	}
}

// WithBufferSize sets the read buffer size.
func WithBufferSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithLogger sets the handler's logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler builds a handler for conn that stops when term delivers
// [shutdown.Terminate].
func NewHandler(conn net.Conn, term <-chan shutdown.Signal, opts ...Option) *Handler {
	h := &Handler{
		conn:        conn,
		term:        term,
		policy:      Echo{},
		readTimeout: DefaultReadTimeout,
		idleDelay:   DefaultIdleDelay,
		bufferSize:  DefaultBufferSize,
		logger:      slog.Default(),
		peer:        peerLabel(conn.RemoteAddr()),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("peer", h.peer)
	return h
}

// Run loops until a terminate signal arrives, the peer closes the stream, or
// a response write fails. The connection is closed on return.
func (h *Handler) Run() {
	defer h.conn.Close()

	h.logger.Info("connection opened", "remote", h.conn.RemoteAddr().String())
	w := bufio.NewWriter(h.conn)
	buf := make([]byte, h.bufferSize)

	for {
		if h.terminated() {
			h.logger.Info("terminate received")
			shutdownBoth(h.conn, h.logger)
			return
		}

		n, err := h.read(buf)
		switch {
		case err != nil:
			h.logger.Info("connection closed by peer", "reason", err.Error())
			return
		case n == 0:
			if h.held != nil && time.Since(h.heldSince) > heldFrameTimeout {
				h.logger.Debug("partial frame never completed", "bytes", len(h.held))
				data := h.held
				h.held = nil
				if err := h.respond(w, data); err != nil {
					h.logger.Warn("response failed, closing connection", "error", err)
					return
				}
			}
			time.Sleep(h.idleDelay)
		default:
			if data, ok := h.assemble(buf[:n]); ok {
				if err := h.respond(w, data); err != nil {
					h.logger.Warn("response failed, closing connection", "error", err)
					return
				}
			}
		}

		h.sendPending(w)
	}
}

// terminated reports whether a terminate signal is waiting, without blocking.
func (h *Handler) terminated() bool {
	select {
	case s := <-h.term:
		return s == shutdown.Terminate
	default:
		return false
	}
}

// read performs one deadline-bounded read. A timeout is reported as zero
// bytes; a returned error means the peer is gone.
func (h *Handler) read(buf []byte) (int, error) {
	if err := h.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", "error", err)
	}
	n, err := h.conn.Read(buf)
	if err == nil || n > 0 {
		return n, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return 0, err
	}
	h.logger.Warn("read failed", "error", err)
	return 0, err
}

// assemble appends chunk to any held partial frame. It returns the bytes to
// handle now, or false when they end in a frame that is still incomplete,
// in which case they are held for the next read.
func (h *Handler) assemble(chunk []byte) ([]byte, bool) {
	data := chunk
	if h.held != nil {
		data = append(h.held, chunk...)
	}
	if missing := packet.Missing(data); missing > 0 {
		if h.held == nil {
			h.held = append([]byte(nil), chunk...)
			h.heldSince = time.Now()
		} else {
			h.held = data
		}
		logger.Trace(h.logger, "holding partial frame", "bytes", len(h.held), "missing", missing)
		return nil, false
	}
	h.held = nil
	return data, true
}

// respond decodes data and applies the policy to each message, flushing any
// reply immediately.
func (h *Handler) respond(w *bufio.Writer, data []byte) error {
	logger.Trace(h.logger, "read", "bytes", len(data))
	for _, m := range Decode(h.peer, data) {
		if err := h.policy.Respond(w, m); err != nil {
			return err
		}
	}
	return w.Flush()
}

// sendPending writes at most one queued outbound payload. Failures are
// logged and the payload is dropped.
func (h *Handler) sendPending(w *bufio.Writer) {
	if h.outbound == nil {
		return
	}
	select {
	case payload, ok := <-h.outbound:
		if !ok {
			h.outbound = nil
			return
		}
		if _, err := w.Write(payload); err != nil {
			h.logger.Warn("failed to send", "bytes", len(payload), "error", err)
			w.Reset(h.conn)
			return
		}
		if err := w.Flush(); err != nil {
			h.logger.Warn("failed to flush", "bytes", len(payload), "error", err)
			w.Reset(h.conn)
		}
	default:
	}
}

// shutdownBoth closes both directions of conn. Connections without
// half-close support are closed outright.
func shutdownBoth(conn net.Conn, logger *slog.Logger) {
	hc, ok := conn.(interface {
		CloseRead() error
		CloseWrite() error
	})
	if !ok {
		if err := conn.Close(); err != nil {
			logger.Debug("failed to close stream", "error", err)
		}
		return
	}
	if err := hc.CloseRead(); err != nil {
		logger.Debug("failed to shut down read side", "error", err)
	}
	if err := hc.CloseWrite(); err != nil {
		logger.Debug("failed to shut down write side", "error", err)
	}
}
