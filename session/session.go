package session

import "github.com/jrsteele09/go-stitch-auth/oauthmodel"

// Internal field names of a Session
const (
	FieldAccessToken  = "accessToken"
	FieldRefreshToken = "refreshToken"
	FieldUserID       = "userId"
	FieldDeviceID     = "deviceId"
)

// Session is the credential set of the authenticated principal. Empty fields are absent.
type Session struct {
	AccessToken  string `json:"accessToken,omitempty"`  // Short-lived bearer credential
	RefreshToken string `json:"refreshToken,omitempty"` // Long-lived credential, stored under its own key
	UserID       string `json:"userId,omitempty"`       // Authenticated principal
	DeviceID     string `json:"deviceId,omitempty"`     // Stable per-installation ID, stored under its own key
}

// IsZero reports whether no field is set.
func (s Session) IsZero() bool {
	return s == Session{}
}

// storedSession is the blob persisted under the session key. Refresh token and device ID live
// under their own keys.
type storedSession struct {
	AccessToken string `json:"accessToken,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

func (s storedSession) merge(fields map[string]string) storedSession {
	if v, ok := fields[FieldAccessToken]; ok {
		s.AccessToken = v
	}
	if v, ok := fields[FieldUserID]; ok {
		s.UserID = v
	}
	return s
}

func (s storedSession) session() Session {
	return Session{AccessToken: s.AccessToken, UserID: s.UserID}
}

// Codec maps wire field names to internal Session field names and back.
type Codec struct {
	toInternal map[string]string
	toWire     map[string]string
}

// NewCodec builds a Codec from a wire-name -> internal-name table.
func NewCodec(wireToInternal map[string]string) Codec {
	c := Codec{
		toInternal: make(map[string]string, len(wireToInternal)),
		toWire:     make(map[string]string, len(wireToInternal)),
	}
	for wire, internal := range wireToInternal {
		c.toInternal[wire] = internal
		c.toWire[internal] = wire
	}
	return c
}

// DefaultCodec is the mapping used by the auth API.
var DefaultCodec = NewCodec(map[string]string{
	oauthmodel.FieldAccessToken:  FieldAccessToken,
	oauthmodel.FieldRefreshToken: FieldRefreshToken,
	oauthmodel.FieldUserID:       FieldUserID,
	oauthmodel.FieldDeviceID:     FieldDeviceID,
})

// Decode returns the mapped string fields of raw keyed by internal name. Unknown wire fields and
// non-string values are dropped.
func (c Codec) Decode(raw oauthmodel.RawObject) map[string]string {
	fields := make(map[string]string, len(raw))
	for wire, value := range raw {
		internal, ok := c.toInternal[wire]
		if !ok {
			continue
		}
		if s, ok := value.(string); ok {
			fields[internal] = s
		}
	}
	return fields
}

// Encode converts a Session to a wire object, omitting absent fields.
func (c Codec) Encode(s Session) oauthmodel.RawObject {
	raw := oauthmodel.RawObject{}
	for internal, value := range map[string]string{
		FieldAccessToken:  s.AccessToken,
		FieldRefreshToken: s.RefreshToken,
		FieldUserID:       s.UserID,
		FieldDeviceID:     s.DeviceID,
	} {
		if value == "" {
			continue
		}
		if wire, ok := c.toWire[internal]; ok {
			raw[wire] = value
		}
	}
	return raw
}
