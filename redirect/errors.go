package redirect

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-stitch-auth/internal/errors"
)

// ErrRedirectState matches every *Error.
var ErrRedirectState = apperrors.ErrRedirectState

// Kind classifies a failed out-of-band credential delivery
type Kind string

const (
	// KindProvider means the redirect carried an error from the auth provider
	KindProvider Kind = "provider"
	// KindMalformed means the embedded session was not four '$'-separated parts
	KindMalformed Kind = "malformed"
	// KindStateMismatch means the echoed state did not match the stored state
	KindStateMismatch Kind = "state_mismatch"
)

// Error describes a failed redirect or cookie delivery.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("redirect %s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrRedirectState
}
