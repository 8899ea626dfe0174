package app

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid handle or password")
	ErrUnauthenticated    = errors.New("sign in required")
	ErrForbidden          = errors.New("forbidden")
)

// ValidationError reports bad input. Messages are shown to the user verbatim.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, " ")
}

// Validation returns a *ValidationError when msgs is non-empty and nil
// otherwise.
func Validation(msgs ...string) error {
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Messages: msgs}
}

// StorageError is an environment fault (disk, permissions, lock timeout),
// never the user's fault.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageFailure reports whether err is or wraps a *StorageError.
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Messages returns the user-facing text for an expected outcome. It returns
// nil for storage failures and unknown errors, which must not be shown.
func Messages(err error) []string {
	var ve *ValidationError
	switch {
	case err == nil, IsStorageFailure(err):
		return nil
	case errors.As(err, &ve):
		return ve.Messages
	case errors.Is(err, ErrAlreadyExists):
		return []string{"That handle is already taken."}
	case errors.Is(err, ErrInvalidCredentials):
		return []string{"Invalid handle or password."}
	case errors.Is(err, ErrUnauthenticated):
		return []string{"Please log in first."}
	case errors.Is(err, ErrForbidden):
		return []string{"You are not allowed to do that."}
	case errors.Is(err, ErrNotFound):
		return []string{"That no longer exists."}
	}
	return nil
}
