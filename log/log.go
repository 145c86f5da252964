// Package log implements support for structured logging.
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// log.DefaultCaller + 2 for the leveled method and the shared emit helper.
const defaultCallerUnwind = 5

// Logger is a structured logger.
type Logger struct {
	base         log.Logger
	logger       log.Logger
	keyvals      []interface{}
	level        Level
	module       string
	callerUnwind int
}

// NewDefaultLogger initializes a new logger instance with default settings.
// For usage outside tests, prefer RootLogger() from package `cmd/common`.
func NewDefaultLogger(module string) *Logger {
	logger, err := NewLogger(module, os.Stdout, FmtJSON, LevelInfo)
	if err != nil {
		// Shouldn't happen as NewLogger can only fail if an invalid format is provided.
		panic(err)
	}
	return logger
}

// NewNopLogger returns a logger that discards everything. Meant for tests.
func NewNopLogger() *Logger {
	return &Logger{
		base:         log.NewNopLogger(),
		logger:       log.NewNopLogger(),
		level:        LevelError + 1,
		module:       "nop",
		callerUnwind: defaultCallerUnwind,
	}
}

// NewLogger initializes a new logger instance.
func NewLogger(module string, w io.Writer, format Format, lvl Level) (*Logger, error) {
	var base log.Logger
	switch format {
	case FmtLogfmt:
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FmtJSON:
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("log: unsupported log format: %v", format)
	}

	l := &Logger{
		base:         base,
		level:        lvl,
		module:       module,
		callerUnwind: defaultCallerUnwind,
	}
	l.rebuild()
	return l, nil
}

func (l *Logger) rebuild() {
	prefixes := []interface{}{
		"ts", log.DefaultTimestampUTC,
		"caller", log.Caller(l.callerUnwind),
	}
	l.logger = log.With(log.WithPrefix(l.base, prefixes...), l.keyvals...)
}

func (l *Logger) clone() *Logger {
	c := *l
	c.keyvals = append([]interface{}(nil), l.keyvals...)
	return &c
}

func (l *Logger) emit(lvl Level, msg string, keyvals []interface{}) {
	if l.level > lvl {
		return
	}
	keyvals = append([]interface{}{"module", l.module, "msg", msg}, keyvals...)
	var leveled log.Logger
	switch lvl {
	case LevelDebug:
		leveled = level.Debug(l.logger)
	case LevelInfo:
		leveled = level.Info(l.logger)
	case LevelWarn:
		leveled = level.Warn(l.logger)
	default:
		leveled = level.Error(l.logger)
	}
	_ = leveled.Log(keyvals...)
}

// Debug logs the message and key value pairs at the Debug log level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.emit(LevelDebug, msg, keyvals)
}

// Info logs the message and key value pairs at the Info log level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.emit(LevelInfo, msg, keyvals)
}

// Warn logs the message and key value pairs at the Warn log level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.emit(LevelWarn, msg, keyvals)
}

// Error logs the message and key value pairs at the Error log level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.emit(LevelError, msg, keyvals)
}

// With returns a clone of the logger with the provided key/value pairs
// added as context for all subsequent logs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	c := l.clone()
	c.keyvals = append(c.keyvals, keyvals...)
	c.logger = log.With(l.logger, keyvals...)
	return c
}

// WithModule returns a clone of the logger with the provided module
// added as context for all subsequent logs.
func (l *Logger) WithModule(module string) *Logger {
	c := l.clone()
	c.module = module
	return c
}

// WithCallerUnwind returns a clone of the logger that reports the caller
// `unwind` frames up the stack. Used when logs are emitted through adapters.
func (l *Logger) WithCallerUnwind(unwind int) *Logger {
	c := l.clone()
	c.callerUnwind = unwind
	c.rebuild()
	return c
}

// Level is the logging level.
func (l *Logger) Level() Level {
	return l.level
}

// loggerWriter adapts a Logger to an io.Writer, one Info entry per write.
type loggerWriter struct {
	logger Logger
}

func (w loggerWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// WriterIntoLogger returns an io.Writer that forwards every write to the
// logger. Suitable for libraries that only accept a stdlib *log.Logger.
func WriterIntoLogger(logger Logger) io.Writer {
	return loggerWriter{logger: logger}
}
