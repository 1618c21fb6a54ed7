// Package log implements context-scoped structured logging on top of zap.
//
// A logger travels inside a context.Context.  Obtain a root context from pctx.Background (or
// pctx.TestContext in tests) and derive named children with pctx.Child; every log line emitted
// through Debug, Info or Error carries the fields and name accumulated along the way.
package log

import (
	"context"
	"os"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed key/value pair attached to a log line.
type Field = zap.Field

type loggerKey struct{}

// level is the process-wide log level; InitLogger and SetLevel change it.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func withLogger(ctx context.Context, l *zap.Logger) context.Context {
	if l == nil {
		zap.L().DPanic("log: internal error: nil logger provided to withLogger")
		l = zap.L()
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

func extractLogger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		zap.L().DPanic("log: internal error: nil context provided to ExtractLogger")
		return zap.L()
	}
	l, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok || l == nil {
		zap.L().DPanic("log: internal error: no logger in provided context")
		return zap.L()
	}
	return l
}

// AddLogger attaches the global logger to ctx.  Most callers want pctx.Background instead.
func AddLogger(ctx context.Context) context.Context {
	return withLogger(ctx, zap.L())
}

// LogOption modifies the logger of a child context.
type LogOption func(*zap.Logger) *zap.Logger

// WithFields adds fields to every line logged by the child.
func WithFields(fields ...Field) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.With(fields...)
	}
}

// WithOptions applies zap options to the child's logger.
func WithOptions(opts ...zap.Option) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.WithOptions(opts...)
	}
}

// ChildLogger returns a context whose logger is named after the parent's name plus name.
func ChildLogger(ctx context.Context, name string, opts ...LogOption) context.Context {
	l := extractLogger(ctx)
	if name != "" {
		l = l.Named(name)
	}
	for _, opt := range opts {
		l = opt(l)
	}
	return withLogger(ctx, l)
}

func write(ctx context.Context, lvl zapcore.Level, msg string, fields []Field) {
	l := extractLogger(ctx).WithOptions(zap.AddCallerSkip(2))
	if e := l.Check(lvl, msg); e != nil {
		e.Write(append(fields, ContextInfo(ctx))...)
	}
}

// Debug logs at debug level.
func Debug(ctx context.Context, msg string, fields ...Field) {
	write(ctx, zapcore.DebugLevel, msg, fields)
}

// Info logs at info level.
func Info(ctx context.Context, msg string, fields ...Field) {
	write(ctx, zapcore.InfoLevel, msg, fields)
}

// Error logs at error level.  Errors that are handled by the caller should not be logged at this
// level.
func Error(ctx context.Context, msg string, fields ...Field) {
	write(ctx, zapcore.ErrorLevel, msg, fields)
}

// ContextInfo is a Field describing the remaining time before ctx's deadline, if any.
func ContextInfo(ctx context.Context) Field {
	if ctx == nil {
		return zap.Skip()
	}
	if err := ctx.Err(); err != nil {
		return zap.String("contextErr", err.Error())
	}
	if d, ok := ctx.Deadline(); ok {
		return zap.Duration("contextDeadline", time.Until(d))
	}
	return zap.Skip()
}

// SetLevel changes the level of every logger created by InitLogger.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// InitLogger installs the global logger.  format is "json" (the default) or "text".
func InitLogger(lvl, format string) error {
	if lvl != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(lvl)); err != nil {
			return errors.Wrapf(err, "parse log level %q", lvl)
		}
		level.SetLevel(l)
	}
	var enc zapcore.Encoder
	switch format {
	case "", "json":
		enc = zapcore.NewJSONEncoder(serviceEncoder)
	case "text", "console":
		enc = zapcore.NewConsoleEncoder(minimalConsoleEncoder)
	default:
		return errors.Errorf("unknown log format %q", format)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	zap.ReplaceGlobals(l)
	zap.RedirectStdLog(l)
	return nil
}
