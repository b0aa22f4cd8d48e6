package pqc

import (
	"go.pqcnet.dev/core/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants,
// following the teacher's per-package error taxonomy convention.
type errorFlag string

const (
	// Error wraps all errors returned by this package.
	Error = errorFlag("pqc: error")

	// ErrInvalidInput flags malformed lengths or empty required fields.
	ErrInvalidInput = errorFlag("pqc: invalid input")

	// ErrVerifyFailed flags a DSA signature or an AEAD tag that did not verify.
	ErrVerifyFailed = errorFlag("pqc: signature verification failed")

	// ErrPrimitiveFailure flags an underlying crypto primitive call that failed.
	ErrPrimitiveFailure = errorFlag("pqc: primitive failure")

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
