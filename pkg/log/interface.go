// Package log provides the structured logging used across vbtune.
//
// The Logger interface is slog-compatible (alternating key/value fields) so
// that call sites read the same whether they end up on the zerolog-backed
// provider used by the CLI or on TestLogger in unit tests. Keys for the
// attributes that recur in the pipeline (data shape, tuning candidate, fold,
// metric) live in attributes.go.
//
//	logger := log.GetLoggerWithName("tune").With(
//	    log.CandidateKey, "Model07",
//	)
//	logger.Info("fold evaluated",
//	    log.FoldKey, 3,
//	    log.MetricKey, "roc_auc",
//	    log.ValueKey, 0.91,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. An error value is rendered with its
// message and, where the backend supports it, the stack trace recorded by
// cockroachdb/errors.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)

	// Error logs at error level. Pass the error under ErrAttrKey
	// ("error") so that handlers can attach its stack trace:
	//
	//	logger.Error("fetch failed", log.ErrAttrKey, err, "url", url)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers. The CLI installs a ZerologProvider; tests
// install a TestLoggerProvider to capture output.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
