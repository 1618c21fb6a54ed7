package log

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// Test returns a context whose logger writes to t.Log.
func Test(t testing.TB, opts ...zap.Option) context.Context {
	l := zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel), zaptest.WrapOptions(append(opts, zap.AddCaller())...))
	return withLogger(context.Background(), l)
}

// History is the set of lines captured by TestWithCapture.
type History struct {
	observed *observer.ObservedLogs
}

// Logs returns each captured line as "level: message".
func (h *History) Logs() []string {
	var result []string
	for _, e := range h.observed.All() {
		result = append(result, fmt.Sprintf("%s: %s", e.Level.String(), e.Message))
	}
	return result
}

// Entries returns the raw captured entries, including their fields.
func (h *History) Entries() []observer.LoggedEntry {
	return h.observed.All()
}

// TestWithCapture returns a context whose logger writes to t.Log and records each line, and
// installs that logger globally for the duration of the test.  Tests using it must not run in
// parallel.
func TestWithCapture(t testing.TB, opts ...zap.Option) (context.Context, *History) {
	core, observed := observer.New(zapcore.DebugLevel)
	tl := zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel))
	l := zap.New(zapcore.NewTee(tl.Core(), core), opts...)
	t.Cleanup(zap.ReplaceGlobals(l))
	return withLogger(context.Background(), l), &History{observed: observed}
}

// HasALog fails the test if nothing was logged.
func (h *History) HasALog(t testing.TB) {
	t.Helper()
	if h.observed.Len() == 0 {
		t.Error("expected some log lines, but found none")
	}
}
