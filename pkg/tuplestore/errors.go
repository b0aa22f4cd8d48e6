// Package tuplestore implements the collaborator contract spec.md §4.6
// describes for QSTP's tuple publisher: an append-only, per-tuple-versioned
// store of signed route/topic metadata, with in-memory, bbolt and pgx
// backends.
package tuplestore

import (
	"go.pqcnet.dev/core/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants,
// following the teacher's per-package error taxonomy convention.
type errorFlag string

const (
	// Error wraps all errors returned by this package.
	Error = errorFlag("tuplestore: error")

	// ErrInvalidInput flags a malformed Payload or TupleId.
	ErrInvalidInput = errorFlag("tuplestore: invalid input")

	// ErrNotFound flags a lookup for a TupleId/version that does not exist.
	ErrNotFound = errorFlag("tuplestore: not found")

	// ErrStorageFailure flags an underlying storage backend error.
	ErrStorageFailure = errorFlag("tuplestore: storage failure")

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

func newError(flag errorFlag, msg string, args ...any) error {
	return utils.NewError(1, flag, msg, args...)
}

func wrapError(cause error, flag errorFlag, msg string, args ...any) error {
	return utils.WrapError(cause, 1, flag, msg, args...)
}
