package pctx

import (
	"context"
	"testing"

	"github.com/hootenanny/jobtrack/src/internal/log"
	"go.uber.org/zap"
)

// TODO returns a context for code that will be updated to take a proper context.  It should not
// be used in new code.
func TODO() context.Context {
	return log.AddLogger(context.TODO())
}

// Background returns a context for use in long-running background processes.
func Background(process string) context.Context {
	ctx := log.AddLogger(context.Background())
	return Child(ctx, process)
}

// TestContext returns a context that logs to t and is canceled when the test ends.
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(log.Test(t))
	t.Cleanup(cancel)
	return ctx
}

// Option is an option for customizing a child context.
type Option struct {
	modifyLogger log.LogOption
}

// WithFields returns a context that includes additional fields that appear on each log line.
func WithFields(fields ...zap.Field) Option {
	return Option{
		modifyLogger: log.WithFields(fields...),
	}
}

// WithOptions returns a context that modifies the logger with additional Zap options.
func WithOptions(opts ...zap.Option) Option {
	return Option{
		modifyLogger: log.WithOptions(opts...),
	}
}

// Child returns a named child context, with additional options.  The new name can be empty.
func Child(ctx context.Context, name string, opts ...Option) context.Context {
	var logOptions []log.LogOption
	for _, opt := range opts {
		if o := opt.modifyLogger; o != nil {
			logOptions = append(logOptions, o)
		}
	}
	return log.ChildLogger(ctx, name, logOptions...)
}
