// Package logger provides the process-wide structured logger.
//
// Output always goes to stderr: stdout carries the MCP stdio protocol.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	mu      sync.RWMutex
	base    = New("info", os.Stderr)
	verbose bool
)

// New creates a logger at the given level writing to w.
// Terminals get human readable console output, everything else gets JSON lines.
func New(level string, w io.Writer) zerolog.Logger {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a config string to a zerolog level. Unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the current process logger.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Set replaces the process logger.
func Set(l zerolog.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// SetLevel changes the level of the process logger. Verbose mode wins over
// anything quieter than debug.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	lvl := ParseLevel(level)
	if verbose && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	base = base.Level(lvl)
}

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		base = base.Level(zerolog.DebugLevel)
	} else if base.GetLevel() < zerolog.InfoLevel {
		base = base.Level(zerolog.InfoLevel)
	}
}

// IsVerbose reports whether verbose mode is on.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// Debug logs a formatted debug message on the process logger.
func Debug(format string, args ...any) {
	l := Get()
	l.Debug().Msgf(format, args...)
}
