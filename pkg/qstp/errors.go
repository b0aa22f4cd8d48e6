// Package qstp implements the sealed mesh tunnel transport spec.md §4.4
// describes: AEAD-sealed frames on named topics, strict per-direction
// anti-replay, additive alternate-route registration and QACE-driven
// reroute/rekey application.
package qstp

import (
	"go.pqcnet.dev/core/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants,
// following the teacher's per-package error taxonomy convention.
type errorFlag string

const (
	// Error wraps all errors returned by this package.
	Error = errorFlag("qstp: error")

	// ErrInvalidInput flags a malformed frame, tunnel/topic mismatch, or
	// invalid configuration.
	ErrInvalidInput = errorFlag("qstp: invalid input")

	// ErrReplayDetected flags a sequence number already seen or fallen
	// below the anti-replay window's trailing edge.
	ErrReplayDetected = errorFlag("qstp: replay detected")

	// ErrAuthFailure flags an AEAD tag that failed to verify.
	ErrAuthFailure = errorFlag("qstp: authentication failure")

	// ErrPrimitiveFailure flags an underlying crypto or hopper call that failed.
	ErrPrimitiveFailure = errorFlag("qstp: primitive failure")

	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	switch self {
	case Error, noError:
		return nil
	default:
		return Error
	}
}

// newError returns a utils.RaisedErr that contains file & line of where it was called.
func newError(flag errorFlag, msg string, args ...any) error {
	return utils.NewError(1, flag, msg, args...)
}

// wrapError returns a utils.RaisedErr that contains file & line of where it was called.
func wrapError(cause error, flag errorFlag, msg string, args ...any) error {
	return utils.WrapError(cause, 1, flag, msg, args...)
}
