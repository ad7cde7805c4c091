package domain

import "errors"

// Domain errors
var (
	ErrProgressNotFound   = errors.New("progress record not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error. Not-found is
// a valid result for progress lookups, never a failure.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrProgressNotFound)
}

// IsStorageError checks if an error means the persistent store is unreachable,
// as opposed to a record simply being absent.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
