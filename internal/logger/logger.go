// internal/logger/logger.go
// Package logger provides the structured logger shared by the bridge packages.
//
// The Logger interface is a thin key/value facade over log/slog so components can
// take a logger as a dependency and tests can substitute a recording one.
package logger

// Level indicates the logging severity level.
type Level int8

const (
	// DebugLevel logs per-byte and per-edge detail; usually disabled.
	DebugLevel Level = iota - 1
	// InfoLevel is the default level.
	InfoLevel
	// WarnLevel is for soft failures the bridge recovers from.
	WarnLevel
	// ErrorLevel is for faults that end a session.
	ErrorLevel
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// Logger defines the logging interface used throughout wklink.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// With creates a child logger carrying the given key/values.
	With(keysAndValues ...any) Logger
	Level() Level
	SetLevel(level Level)
}
