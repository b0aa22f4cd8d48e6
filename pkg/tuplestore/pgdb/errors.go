package pgdb

import "go.pqcnet.dev/core/internal/utils"

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// Error wraps all errors returned by this package.
	Error = errorFlag("tuplestore/pgdb: error")

	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	}
	return Error
}

func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}
