package logger

import corelogger "github.com/kilianp07/fleetdispatch/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. Output follows the options
// passed to Configure, or the APP_ENV variable when Configure was not called.
func New(component string) Logger {
	return NewZerologLogger(component)
}
