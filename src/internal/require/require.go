// Package require is a thin layer over testify's require, with a few helpers that read
// better in this module's tests.
package require

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// NoError fails the test if err is not nil.
func NoError(tb testing.TB, err error, msgAndArgs ...interface{}) {
	tb.Helper()
	require.NoError(tb, err, msgAndArgs...)
}

// YesError fails the test if err is nil.
func YesError(tb testing.TB, err error, msgAndArgs ...interface{}) {
	tb.Helper()
	require.Error(tb, err, msgAndArgs...)
}

// ErrorIs fails the test unless target is in err's chain.
func ErrorIs(tb testing.TB, err, target error, msgAndArgs ...interface{}) {
	tb.Helper()
	require.ErrorIs(tb, err, target, msgAndArgs...)
}

// ErrorContains fails the test unless err's message contains contains.
func ErrorContains(tb testing.TB, err error, contains string, msgAndArgs ...interface{}) {
	tb.Helper()
	require.ErrorContains(tb, err, contains, msgAndArgs...)
}

// Equal fails the test unless expected and actual are equal.
func Equal(tb testing.TB, expected, actual interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	require.Equal(tb, expected, actual, msgAndArgs...)
}

// NotEqual fails the test if expected and actual are equal.
func NotEqual(tb testing.TB, expected, actual interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	require.NotEqual(tb, expected, actual, msgAndArgs...)
}

// ElementsEqual fails the test unless expected and actual contain the same elements,
// ignoring order.
func ElementsEqual(tb testing.TB, expected, actual interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	require.ElementsMatch(tb, expected, actual, msgAndArgs...)
}

// Len fails the test unless object has length n.
func Len(tb testing.TB, object interface{}, n int, msgAndArgs ...interface{}) {
	tb.Helper()
	require.Len(tb, object, n, msgAndArgs...)
}

// True fails the test unless value is true.
func True(tb testing.TB, value bool, msgAndArgs ...interface{}) {
	tb.Helper()
	require.True(tb, value, msgAndArgs...)
}

// False fails the test unless value is false.
func False(tb testing.TB, value bool, msgAndArgs ...interface{}) {
	tb.Helper()
	require.False(tb, value, msgAndArgs...)
}

// NoDiff fails the test if cmp.Diff reports a difference between want and got.
func NoDiff(tb testing.TB, want, got interface{}, opts []cmp.Option, msgAndArgs ...interface{}) {
	tb.Helper()
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		require.Fail(tb, "unexpected difference (-want +got):\n"+diff, msgAndArgs...)
	}
}
