// Package logger defines the keyval logging surface the engine writes to,
// with adapters for phuslu/log and slog and a silent implementation for
// tests.
package logger

// Logger is the engine-facing logging contract. Arguments after the message
// alternate key, value.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// TraceIDFunc produces the correlation ID attached to decisions and audit
// rows. Implementations must be safe for concurrent use.
type TraceIDFunc func() string
