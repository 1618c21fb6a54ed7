// Package errors wraps github.com/pkg/errors so that every error produced in this module
// carries a stack trace, while still interoperating with the standard library's
// errors.Is/As/Join.
package errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// StackTracer is implemented by errors that recorded a stack trace.
type StackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// New returns an error with the supplied message and a stack trace.
func New(message string) error {
	return pkgerrors.New(message)
}

// Errorf formats according to a format specifier and returns an error with a stack trace.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Wrap annotates err with a message and a stack trace.  Wrap returns nil if err is nil.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Wrapf is like Wrap, with a format specifier.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// EnsureStack adds a stack trace to err if it does not already have one.  It is meant for
// errors returned by third-party libraries.
func EnsureStack(err error) error {
	if err == nil {
		return nil
	}
	var st StackTracer
	if errors.As(err, &st) {
		return err
	}
	return pkgerrors.WithStack(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors; nil errors are discarded.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
