package auth

import "errors"

var (
	// ErrValidation means a required field was missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrConflict means the username or email is already taken.
	ErrConflict = errors.New("username or email already exists")
	// ErrPersistence wraps any store failure. The cause is logged, never returned.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidCredentials is the single answer for every failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	// ErrManagedAccount is returned for the configuration-backed admin, which
	// has no stored identity to update.
	ErrManagedAccount = errors.New("account is managed by configuration")

	ErrSessionNotFound = errors.New("session not found")
)

// ValidationError carries a message fit to show the user. It matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
