// Package logger provides loopchat's slog handler and the rotating log file
// behind it.
//
// Log lines look like:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | peer=54321, bytes=12
//
// Two levels extend the slog set: LevelTrace (-8) for per-read chatter and
// LevelFail (12) for errors that end the process.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

var levelNames = []struct {
	max  slog.Level
	name string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
}

func levelName(l slog.Level) string {
	for _, n := range levelNames {
		if l <= n.max {
			return n.name
		}
	}
	return "FAIL"
}

// ParseLevel converts a case-insensitive level name to a slog.Level,
// returning LevelInfo for anything it does not recognize.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fail":
		return LevelFail
	default:
		return LevelInfo
	}
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

const timeFormat = "2006-01-02T15:04:05.000Z"

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// Handler is a slog.Handler producing one pipe-separated line per record.
// The level is read through a slog.Leveler on every call, so a
// *slog.LevelVar changes filtering without rebuilding the logger.
type Handler struct {
	// w receives formatted lines.
	w io.Writer
	// mu is shared by every handler derived from the same root so lines
	// never interleave.
	mu *sync.Mutex
	// level is the minimum severity emitted.
	level slog.Leveler
	// prefix holds attributes already rendered by [Handler.WithAttrs].
	prefix []string
	// group is the dotted key prefix set by [Handler.WithGroup].
	group string
}

// NewHandler creates a Handler writing to w and filtering below level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = LevelInfo
	}
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether records at level are emitted.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes one record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.Grow(96)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.UTC().Format(timeFormat))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)

	fields := make([]string, 0, len(h.prefix)+r.NumAttrs())
	fields = append(fields, h.prefix...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.group, a)
		return true
	})
	if len(fields) > 0 {
		b.WriteString(" | ")
		b.WriteString(strings.Join(fields, ", "))
	}
	b.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a Handler that prepends attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := make([]string, len(h.prefix), len(h.prefix)+len(attrs))
	copy(prefix, h.prefix)
	for _, a := range attrs {
		prefix = appendAttr(prefix, h.group, a)
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, prefix: prefix, group: h.group}
}

// WithGroup returns a Handler that prefixes later attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, prefix: h.prefix, group: group}
}

// appendAttr renders a as key=value, flattening nested groups.
func appendAttr(fields []string, group string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			fields = appendAttr(fields, key, ga)
		}
		return fields
	}
	return append(fields, key+"="+formatValue(a.Value))
}

// formatValue quotes strings that would otherwise break the line format.
func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && (s == "" || strings.ContainsAny(s, ",|=\r\n\"")) {
		return strconv.Quote(s)
	}
	return s
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [NewLogger].
type Options struct {
	// Path is the log file; rotated by size.
	Path string
	// Level is the minimum level; a *slog.LevelVar allows live changes.
	Level slog.Leveler
	// MaxSizeMB is the size at which the file rotates.
	MaxSizeMB int
	// Console mirrors every line to Stderr.
	Console bool
	// Stderr overrides os.Stderr for Console output.
	Stderr io.Writer
}

// NewLogger creates a slog.Logger writing to a rotating log file. The
// returned io.Closer closes the file.
func NewLogger(opts Options) (*slog.Logger, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if opts.Console {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		w = io.MultiWriter(lj, stderr)
	}
	return slog.New(NewHandler(w, opts.Level)), lj
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}
