// Package logger owns the process-wide root logger. Components that are
// constructed with an injected hclog.Logger should prefer it; the package
// helpers exist for code paths that have no logger of their own (middleware,
// startup, shutdown).
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Options configures the root logger.
type Options struct {
	Level  string
	Format string // "json" or "text"
	Output io.Writer
}

var (
	root   hclog.Logger = hclog.New(&hclog.LoggerOptions{Name: "zynk", Level: hclog.Info})
	rootMu sync.RWMutex
)

// Init replaces the root logger. It is safe to call more than once, which the
// config watcher does when the log level changes.
func Init(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := hclog.LevelFromString(strings.ToLower(opts.Level))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	l := hclog.New(&hclog.LoggerOptions{
		Name:       "zynk",
		Level:      level,
		Output:     out,
		JSONFormat: strings.EqualFold(opts.Format, "json"),
	})

	rootMu.Lock()
	root = l
	rootMu.Unlock()
	return l
}

// Get returns the root logger.
func Get() hclog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Named returns a sub-logger of the root logger.
func Named(name string) hclog.Logger {
	return Get().Named(name)
}

// Info logs informational messages with key/value pairs
func Info(msg string, args ...interface{}) {
	Get().Info(msg, args...)
}

// Warn logs warning messages
func Warn(msg string, args ...interface{}) {
	Get().Warn(msg, args...)
}

// Error logs error messages
func Error(msg string, args ...interface{}) {
	Get().Error(msg, args...)
}

// Debug logs debug messages
func Debug(msg string, args ...interface{}) {
	Get().Debug(msg, args...)
}
