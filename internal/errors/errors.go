package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session manager
var (
	// Authentication errors
	ErrUnauthorized     = errors.New("unauthorized: no session")
	ErrInvalidSession   = errors.New("invalid session")
	ErrRefreshFailed    = errors.New("session refresh failed")
	ErrCorruptAuthState = errors.New("stored auth state is corrupt")

	// Impersonation errors
	ErrAlreadyImpersonating = errors.New("already impersonating a user")
	ErrNotImpersonating     = errors.New("not impersonating a user")

	// Redirect errors
	ErrRedirectState = errors.New("redirect credential delivery failed")

	// Storage errors
	ErrInvalidNamespace = errors.New("storage namespace is required")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
