// Package qfkh implements the Quantum Forward Key Hopper: forward-secret,
// rotating KEM sessions with scheduled announcement/activation windows.
package qfkh

import (
	"go.pqcnet.dev/core/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants,
// following the teacher's per-package error taxonomy convention.
type errorFlag string

const (
	// Error wraps all errors returned by this package.
	Error = errorFlag("qfkh: error")

	// ErrInvalidInput flags malformed configuration or arguments.
	ErrInvalidInput = errorFlag("qfkh: invalid input")

	// ErrOutOfWindow flags an encapsulate_for/activate_from call outside a
	// ticket's announce/activate window.
	ErrOutOfWindow = errorFlag("qfkh: epoch window violation")

	// ErrUnknownEpoch flags a responder unable to find the keypair a capsule
	// targets (already retired, or never generated).
	ErrUnknownEpoch = errorFlag("qfkh: unknown epoch")

	// ErrCommitmentMismatch flags a capsule whose commitment does not bind to
	// the ticket and ciphertext it claims to target.
	ErrCommitmentMismatch = errorFlag("qfkh: commitment mismatch")

	// ErrPrimitiveFailure flags an underlying crypto primitive call that failed.
	ErrPrimitiveFailure = errorFlag("qfkh: primitive failure")

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
