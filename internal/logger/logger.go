package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Log is the global logger instance
var Log *slog.Logger

// level is the dynamic log level, changeable at runtime via SetLevel.
// Uses slog.LevelVar which is backed by atomic.Int64, safe for concurrent use.
var level slog.LevelVar

// ring buffers recent formatted lines for the keyboard-triggered log tab.
var ring = &lineRing{max: 2000}

// Init initializes the global logger with the specified level, writing to
// w and mirroring into the in-memory ring buffer the log overlay reads.
func Init(levelStr string, w io.Writer) {
	SetLevel(levelStr)
	mw := io.MultiWriter(w, ring)
	Log = slog.New(slog.NewTextHandler(mw, &slog.HandlerOptions{
		Level: &level,
	}))
}

// SetLevel changes the log level at runtime. Valid values: debug, info, warn, error.
// Invalid values fall back to info.
func SetLevel(levelStr string) {
	var lvl slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	level.Set(lvl)
}

// lineRing is a fixed-capacity ring buffer of recently logged lines,
// backing the keyboard-triggered log tab's pagination (keyboard
// mapping `[`/`]`) without holding the whole run's log in memory.
type lineRing struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial bytes.Buffer
}

// Write implements io.Writer, splitting the handler's output into lines
// and appending each complete line to the ring.
func (r *lineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial.Write(p)
	for {
		s := r.partial.String()
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			break
		}
		r.append(s[:idx])
		r.partial.Next(idx + 1)
	}
	return len(p), nil
}

func (r *lineRing) append(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
}

// Lines returns up to count lines starting at offset from the end of the
// buffer (offset 0 = most recent page), oldest-first within the page.
func (r *lineRing) Lines(offset, count int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.lines)
	end := total - offset
	if end <= 0 {
		return nil
	}
	start := end - count
	if start < 0 {
		start = 0
	}
	out := make([]string, end-start)
	copy(out, r.lines[start:end])
	return out
}

// TailLines returns the most recent count lines, for the log tab's
// default (unpaginated) view.
func TailLines(count int) []string {
	return ring.Lines(0, count)
}

// PageLines returns a page of buffered log lines for the `[`/`]`
// paginated log overlay: page 0 is most recent.
func PageLines(page, pageSize int) []string {
	return ring.Lines(page*pageSize, pageSize)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if Log != nil {
		Log.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...any) {
	if Log != nil {
		Log.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if Log != nil {
		Log.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...any) {
	if Log != nil {
		Log.Error(msg, args...)
	}
}
