// Package logging provides the structured logger shared by every
// component of the Reliability Intelligence Core, built on zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	levelDebug   = "debug"
	levelInfo    = "info"
	levelWarning = "warn"
	levelError   = "error"
	levelFatal   = "fatal"
)

// ctxKey is a private type so context values set by this package never
// collide with keys set by callers.
type ctxKey string

const (
	ctxTraceID   ctxKey = "trace_id"
	ctxRequestID ctxKey = "request_id"
	ctxService   ctxKey = "service"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorFieldName = "error"
	zerolog.CallerFieldName = "caller"
}

// Logger is the structured logging interface used throughout the module.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warning(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	WithContext(ctx context.Context) Logger
	WithFields(fields ...Field) Logger
}

// Field is a key-value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// StructuredLogger implements Logger over a zerolog.Logger.
type StructuredLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a new structured logger at the given level, writing
// one JSON object per line to output.
func NewLogger(level string, output io.Writer) *StructuredLogger {
	if output == nil {
		output = os.Stdout
	}

	zl := zerolog.New(output).With().Timestamp().Logger().Level(parseLogLevel(level))
	return &StructuredLogger{zl: zl}
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case levelDebug:
		return zerolog.DebugLevel
	case levelInfo:
		return zerolog.InfoLevel
	case levelWarning, "warning":
		return zerolog.WarnLevel
	case levelError:
		return zerolog.ErrorLevel
	case levelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *StructuredLogger) Debug(msg string, fields ...Field) {
	apply(l.zl.Debug(), fields...).Msg(msg)
}

func (l *StructuredLogger) Info(msg string, fields ...Field) {
	apply(l.zl.Info(), fields...).Msg(msg)
}

func (l *StructuredLogger) Warning(msg string, fields ...Field) {
	apply(l.zl.Warn(), fields...).Msg(msg)
}

// Error logs at ERROR, capturing the call site so on-call engineers can
// jump straight to the failing line.
func (l *StructuredLogger) Error(msg string, fields ...Field) {
	apply(l.zl.Error().Caller(2), fields...).Msg(msg)
}

// Fatal logs at FATAL, capturing the call site, and terminates the process.
func (l *StructuredLogger) Fatal(msg string, fields ...Field) {
	apply(l.zl.Fatal().Caller(2), fields...).Msg(msg)
}

// WithContext returns a logger that stamps trace/request/service IDs
// pulled from ctx onto every subsequent entry.
func (l *StructuredLogger) WithContext(ctx context.Context) Logger {
	zctx := l.zl.With()
	if ctx != nil {
		if v, ok := ctx.Value(ctxTraceID).(string); ok {
			zctx = zctx.Str("trace_id", v)
		}
		if v, ok := ctx.Value(ctxRequestID).(string); ok {
			zctx = zctx.Str("request_id", v)
		}
		if v, ok := ctx.Value(ctxService).(string); ok {
			zctx = zctx.Str("service", v)
		}
	}
	return &StructuredLogger{zl: zctx.Logger()}
}

// WithFields returns a logger with additional persistent fields.
func (l *StructuredLogger) WithFields(fields ...Field) Logger {
	zctx := l.zl.With()
	for _, f := range fields {
		zctx = zctx.Interface(f.Key, f.Value)
	}
	return &StructuredLogger{zl: zctx.Logger()}
}

func apply(e *zerolog.Event, fields ...Field) *zerolog.Event {
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	return e
}

// String creates a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a boolean field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field, rendered as its string form.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Time creates a time field, rendered as RFC3339.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339)}
}

// Err creates an error field; a nil error logs as a nil value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field carrying an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

var (
	globalLogger Logger
	once         sync.Once
)

// InitGlobalLogger initializes the global logger. Only the first call
// takes effect.
func InitGlobalLogger(level string, output io.Writer) {
	once.Do(func() {
		globalLogger = NewLogger(level, output)
	})
}

// GetLogger returns the global logger, lazily initializing an info-level
// stdout logger if none was configured.
func GetLogger() Logger {
	if globalLogger == nil {
		InitGlobalLogger(levelInfo, os.Stdout)
	}
	return globalLogger
}

func Debug(msg string, fields ...Field)   { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...Field)    { GetLogger().Info(msg, fields...) }
func Warning(msg string, fields ...Field) { GetLogger().Warning(msg, fields...) }
func Error(msg string, fields ...Field)   { GetLogger().Error(msg, fields...) }
func Fatal(msg string, fields ...Field)   { GetLogger().Fatal(msg, fields...) }
