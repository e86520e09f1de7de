package oauthmodel

import "strings"

// ErrorCode is the kind of failure reported in an error response body
type ErrorCode string

const (
	// ErrorCodeInvalidSession means the bearer token is expired or revoked and the session
	// should be refreshed.
	ErrorCodeInvalidSession ErrorCode = "InvalidSession"

	// ErrorCodeUnknown is used when the body carries no error code
	ErrorCodeUnknown ErrorCode = "Unknown"
)

// ErrorBody is the JSON body of a non-2xx response.
// Example: {"error": "invalid session", "error_code": "InvalidSession"}
type ErrorBody struct {
	Message string    `json:"error"`
	Code    ErrorCode `json:"error_code"`
	Link    string    `json:"link,omitempty"`
}

// Normalize fills a missing code and trims the message.
func (e ErrorBody) Normalize() ErrorBody {
	e.Message = strings.TrimSpace(e.Message)
	if e.Code == "" {
		e.Code = ErrorCodeUnknown
	}
	return e
}
