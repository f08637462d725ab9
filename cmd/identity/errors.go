package identity

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or unacceptable input.
// Msg is safe to show to the caller.
type ValidationError struct {
	Op    string
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, ErrInvalidInput, e.Msg)
	}
	return fmt.Sprintf("%s: %v: %s: %s", e.Op, ErrInvalidInput, e.Field, e.Msg)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// ConflictError reports a uniqueness conflict for a logical field
// (FieldUsername, FieldEmail, FieldPublicID). Field is empty when the
// store could not tell which constraint fired.
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidCredentialsError is returned for an unknown identifier and for a wrong
// password alike, so callers cannot tell which one it was.
type InvalidCredentialsError struct {
	Op string
}

func (e InvalidCredentialsError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrInvalidCredentials)
}

func (e InvalidCredentialsError) Unwrap() error { return ErrInvalidCredentials }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsInvalidCredentials reports whether err represents ErrInvalidCredentials.
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
