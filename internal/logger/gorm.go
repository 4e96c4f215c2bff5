package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's statement log into a module logger. Statements
// log at trace, slow ones and failures at warn. Errors listed as expected,
// such as gorm.ErrRecordNotFound, log at debug.
type GormLogger struct {
	log      Logger
	slow     time.Duration
	expected []error
}

// NewGormLogger creates the adapter; a zero slow disables slow statement warnings
func NewGormLogger(log Logger, slow time.Duration, expected ...error) *GormLogger {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLogger{log: log, slow: slow, expected: expected}
}

// LogMode is ignored; levels come from the module logger
func (g *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return g }

func (g *GormLogger) Info(_ context.Context, msg string, args ...any) {
	g.log.Debug(fmt.Sprintf(msg, args...))
}

func (g *GormLogger) Warn(_ context.Context, msg string, args ...any) {
	g.log.Warn(fmt.Sprintf(msg, args...))
}

func (g *GormLogger) Error(_ context.Context, msg string, args ...any) {
	g.log.Error(fmt.Sprintf(msg, args...))
}

func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []Field{String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed)}

	switch {
	case err != nil && g.isExpected(err):
		g.log.Debug("statement returned expected error", append(fields, Error(err))...)
	case err != nil:
		g.log.Warn("statement failed", append(fields, Error(err))...)
	case g.slow > 0 && elapsed > g.slow:
		g.log.Warn("slow statement", append(fields, Duration("threshold", g.slow))...)
	default:
		g.log.Trace("statement", fields...)
	}
}

func (g *GormLogger) isExpected(err error) bool {
	for _, e := range g.expected {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
