package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the level at which span start and end lines are logged.
type Level int

const (
	DebugLevel Level = 1
	InfoLevel  Level = 2
	ErrorLevel Level = 3
)

func (l Level) coreLevel() zapcore.Level {
	switch l {
	case InfoLevel:
		return zapcore.InfoLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

// EndSpanFunc ends a span.
type EndSpanFunc = func(fields ...Field)

const errorpType = zapcore.InlineMarshalerType + 100

// Errorp is a Field that marks a span as failed if *err is non-nil when the span ends.
func Errorp(err *error) Field {
	return zapcore.Field{
		Key:       "error",
		Type:      errorpType,
		Interface: err,
	}
}

const (
	spanStarting = "span start"
	spanOK       = "span finished ok"
	spanFailed   = "span failed"
)

func endSpan(ctx context.Context, l *zap.Logger, event string, level Level, start time.Time) EndSpanFunc {
	return func(raw ...Field) {
		fields := []Field{zap.Duration("spanDuration", time.Since(start))}
		msg := spanOK
		for _, f := range raw {
			if f.Type == errorpType {
				if errp, ok := f.Interface.(*error); ok && *errp != nil {
					msg = spanFailed
					fields = append(fields, zap.Error(*errp))
				}
				continue
			}
			if _, ok := f.Interface.(error); ok {
				msg = spanFailed
			}
			fields = append(fields, f)
		}
		if e := l.Check(level.coreLevel(), event+": "+msg); e != nil {
			e.Write(append(fields, ContextInfo(ctx))...)
		}
	}
}

// SpanContextL starts a span, returning a context whose logger is scoped to the span and a
// function that ends it.  Pass log.Errorp(&retErr) or zap.Error(err) to the end function to mark
// the span failed.  The end function must be deferred.
func SpanContextL(rctx context.Context, event string, level Level, fields ...Field) (context.Context, EndSpanFunc) {
	l := extractLogger(rctx).Named(event).With(fields...)
	if e := l.WithOptions(zap.AddCallerSkip(1)).Check(level.coreLevel(), event+": "+spanStarting); e != nil {
		e.Write(ContextInfo(rctx))
	}
	ctx := withLogger(rctx, l)
	return ctx, endSpan(ctx, l, event, level, time.Now())
}

// SpanContext starts a span at debug level.
func SpanContext(rctx context.Context, event string, fields ...Field) (context.Context, EndSpanFunc) {
	return SpanContextL(rctx, event, DebugLevel, fields...)
}

// Span starts a span at debug level, discarding the derived context.
func Span(ctx context.Context, event string, fields ...Field) EndSpanFunc {
	_, end := SpanContextL(ctx, event, DebugLevel, fields...)
	return end
}
