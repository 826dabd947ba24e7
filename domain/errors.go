package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceNotLinked is returned when a gated request targets a streaming
	// service the user has not linked, or the stored link is missing its
	// access or refresh token. The user must complete the link flow.
	ErrServiceNotLinked = errors.New("streaming service not linked")

	// ErrRefreshFailed is returned when the provider rejected a token refresh
	// or was unreachable. The stale token is left in place so the next gated
	// request can try again.
	ErrRefreshFailed = errors.New("access token refresh failed")

	// ErrAlreadyLinked is returned when a link flow runs for a service the
	// user already has a link for.
	ErrAlreadyLinked = errors.New("streaming service already linked")

	// ErrUserNotLoggedIn is returned when a flow requiring an authenticated
	// principal runs without one.
	ErrUserNotLoggedIn = errors.New("user not logged in")

	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("account with this email already exists")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
)

// ValidationError describes a single malformed or missing field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
