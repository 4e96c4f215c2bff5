// Package logger provides module-scoped structured logging on top of log/slog.
//
// A single CentralLogger is built from LoggingConfig at startup and installed
// with SetGlobal. Packages obtain their logger with
//
//	logger.Global().Module("pipeline")
//
// and log through typed fields:
//
//	log.Info("file processed",
//	    logger.Int64("file_id", id),
//	    logger.Int("visits", n),
//	    logger.Duration("elapsed", elapsed))
//
// Console output is human-readable text; file output is JSON. Modules may be
// routed to their own files and given their own level.
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel names a logging level in configuration and Log calls
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is a typed key/value pair attached to a log record
type Field struct {
	Key   string
	Value any
}

// internKey deduplicates field keys, most of which are string literals reused on every call
func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey   = internKey("error")
	moduleKey  = internKey("module")
	traceIDKey = internKey("trace_id")
)

// Logger is the logging interface used throughout the application
type Logger interface {
	// Module returns a child logger scoped to a sub-module ("pipeline.media")
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that adds fields to every record
	With(fields ...Field) Logger
	// WithContext returns a logger carrying the trace id found in ctx, if any
	WithContext(ctx context.Context) Logger

	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates the conventional "error" field; a nil error logs as null
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}

func Time(key string, value time.Time) Field {
	return Field{Key: internKey(key), Value: value}
}

func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
