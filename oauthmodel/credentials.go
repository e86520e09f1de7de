package oauthmodel

// Provider kinds accepted by the login endpoint
const (
	ProviderAnonymous    = "anon-user"
	ProviderUserPassword = "local-userpass"
	ProviderAPIKey       = "api-key"
	ProviderCustomToken  = "custom-token"
)

// Credentials is a login credential for one provider kind.
type Credentials interface {
	// Provider is the provider kind used in the login URL
	Provider() string

	// Payload is the JSON body sent to the login endpoint
	Payload() map[string]any
}

// AnonymousCredentials logs in as an anonymous user.
type AnonymousCredentials struct{}

func (AnonymousCredentials) Provider() string        { return ProviderAnonymous }
func (AnonymousCredentials) Payload() map[string]any { return map[string]any{} }

// UserPasswordCredentials logs in with a username (usually an email) and password.
// Security: Never log the password
type UserPasswordCredentials struct {
	Username string
	Password string
}

func (UserPasswordCredentials) Provider() string { return ProviderUserPassword }

func (c UserPasswordCredentials) Payload() map[string]any {
	return map[string]any{"username": c.Username, "password": c.Password}
}

// APIKeyCredentials logs in with a user or server API key.
type APIKeyCredentials struct {
	Key string
}

func (APIKeyCredentials) Provider() string { return ProviderAPIKey }

func (c APIKeyCredentials) Payload() map[string]any {
	return map[string]any{"key": c.Key}
}

// CustomTokenCredentials logs in with a JWT issued by a third party.
type CustomTokenCredentials struct {
	Token string
}

func (CustomTokenCredentials) Provider() string { return ProviderCustomToken }

func (c CustomTokenCredentials) Payload() map[string]any {
	return map[string]any{"token": c.Token}
}

// LoginRequest is the body sent to the login endpoint.
type LoginRequest map[string]any

// NewLoginRequest builds the login body for creds, attaching the device ID when one is known.
func NewLoginRequest(creds Credentials, deviceID string) LoginRequest {
	req := LoginRequest{}
	for k, v := range creds.Payload() {
		req[k] = v
	}
	if deviceID != "" {
		req["options"] = map[string]any{
			"device": map[string]any{"deviceId": deviceID},
		}
	}
	return req
}
