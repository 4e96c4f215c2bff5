package logger

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"
)

// traceLevel sits below slog.LevelDebug
const traceLevel = slog.Level(-8)

func parseLogLevel(name string) slog.Level {
	return LogLevel(name).toSlog()
}

// toSlog maps a level name; unknown names mean info
func (l LogLevel) toSlog() slog.Level {
	switch l {
	case LogLevelTrace:
		return traceLevel
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

type traceIDCtxKey struct{}

// WithTraceID returns a context whose loggers, via WithContext, tag records with traceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDCtxKey{}, traceID)
}

// moduleLogger is the Logger handed out by CentralLogger.Module
type moduleLogger struct {
	name   string
	out    *slog.Logger
	min    slog.Level
	fields []Field
}

func (m *moduleLogger) derive(name string, fields []Field) *moduleLogger {
	return &moduleLogger{name: name, out: m.out, min: m.min, fields: fields}
}

func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	if m.name != "" {
		name = m.name + "." + name
	}
	return m.derive(name, slices.Clone(m.fields))
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	return m.derive(m.name, slices.Concat(m.fields, fields))
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	if ctx == nil {
		return m
	}
	id, _ := ctx.Value(traceIDCtxKey{}).(string)
	if id == "" {
		return m
	}
	return m.With(String(traceIDKey, id))
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(traceLevel, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(level.toSlog(), msg, fields)
}

// Flush is a no-op; files belong to the CentralLogger
func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.min {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.name != "" {
		attrs = append(attrs, slog.String(moduleKey, m.name))
	}
	for _, f := range m.fields {
		attrs = append(attrs, f.attr())
	}
	for _, f := range fields {
		attrs = append(attrs, f.attr())
	}
	m.out.LogAttrs(context.Background(), level, msg, attrs...)
}

// attr converts f; floats keep three decimals and durations render as "1.5s"
func (f Field) attr() slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint:
		return slog.Uint64(f.Key, uint64(v))
	case uint64:
		return slog.Uint64(f.Key, v)
	case float32:
		return slog.Float64(f.Key, round3(float64(v)))
	case float64:
		return slog.Float64(f.Key, round3(v))
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	}
	return slog.Any(f.Key, f.Value)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
