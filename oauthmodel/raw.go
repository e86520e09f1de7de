package oauthmodel

// RawObject is a decoded JSON object exactly as the server sent it, keyed by wire field names.
type RawObject map[string]any

// Wire field names used by the auth API
const (
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldUserID       = "user_id"
	FieldDeviceID     = "device_id"
)

// String returns the string value of a field, or "" if it is missing or not a string.
func (o RawObject) String(field string) string {
	s, _ := o[field].(string)
	return s
}
