// Package qace implements the adaptive path controller: given telemetry and
// a set of candidate routes it scores every candidate and decides whether to
// hold, reroute, rekey or fail over.
package qace

import (
	"go.pqcnet.dev/core/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants,
// following the teacher's per-package error taxonomy convention.
type errorFlag string

const (
	// Error wraps all errors returned by this package.
	Error = errorFlag("qace: error")

	// ErrInvalidInput flags malformed weights, bounds or an empty PathSet.
	ErrInvalidInput = errorFlag("qace: invalid input")

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
