package logger

import (
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root = hclog.New(&hclog.LoggerOptions{
		Name:  "muselink",
		Level: hclog.Info,
	})
)

// Init reconfigures the root logger. Level is one of trace, debug, info,
// warn, error; anything unrecognized falls back to info.
func Init(level string, json bool) {
	mu.Lock()
	defer mu.Unlock()
	root = hclog.New(&hclog.LoggerOptions{
		Name:       "muselink",
		Level:      hclog.LevelFromString(level),
		JSONFormat: json,
	})
}

// Named returns a sub-logger for a subsystem (e.g. "scanner", "jobs").
func Named(name string) hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(name)
}

// Info logs informational messages
func Info(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Info(msg, args...)
}

// Warn logs warning messages
func Warn(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Warn(msg, args...)
}

// Error logs error messages
func Error(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Error(msg, args...)
}

// Debug logs debug messages
func Debug(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Debug(msg, args...)
}
