package auth

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-stitch-auth/internal/errors"
	"github.com/jrsteele09/go-stitch-auth/oauthmodel"
	"github.com/jrsteele09/go-stitch-auth/transport"
)

var (
	ErrUnauthorized         = apperrors.ErrUnauthorized
	ErrInvalidSession       = apperrors.ErrInvalidSession
	ErrRefreshFailed        = apperrors.ErrRefreshFailed
	ErrCorruptAuthState     = apperrors.ErrCorruptAuthState
	ErrRedirectState        = apperrors.ErrRedirectState
	ErrAlreadyImpersonating = apperrors.ErrAlreadyImpersonating
	ErrNotImpersonating     = apperrors.ErrNotImpersonating
)

// APIError is a non-2xx response with a JSON error body.
type APIError struct {
	Message    string
	Code       oauthmodel.ErrorCode
	StatusCode int
	Response   *transport.Response
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is matches ErrInvalidSession when the server reported an invalid session.
func (e *APIError) Is(target error) bool {
	return target == ErrInvalidSession && e.Code == oauthmodel.ErrorCodeInvalidSession
}

// TransportError is a non-2xx response whose body is not JSON.
type TransportError struct {
	StatusCode int
	Status     string
	Response   *transport.Response
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s", e.Status)
}

// RefreshError is returned when the refresh triggered by an invalid session failed. Err is the
// refresh failure, not the original response.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%v: %v", ErrRefreshFailed, e.Err)
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// classify turns a non-2xx response into an *APIError or a *TransportError.
func classify(resp *transport.Response) error {
	if !resp.IsJSON() {
		return &TransportError{StatusCode: resp.StatusCode, Status: resp.StatusText(), Response: resp}
	}

	var body oauthmodel.ErrorBody
	if err := resp.JSON(&body); err != nil {
		return &TransportError{StatusCode: resp.StatusCode, Status: resp.StatusText(), Response: resp}
	}
	body = body.Normalize()
	if body.Message == "" {
		body.Message = resp.StatusText()
	}
	return &APIError{Message: body.Message, Code: body.Code, StatusCode: resp.StatusCode, Response: resp}
}
