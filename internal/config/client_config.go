package config

import (
	"strings"
	"time"
)

const (
	baseURLVar      = "STITCH_BASE_URL"
	appIDVar        = "STITCH_APP_ID"
	expiryWindowVar = "STITCH_EXPIRY_WINDOW"
	httpTimeoutVar  = "STITCH_HTTP_TIMEOUT"
)

type ClientConfig interface {
	GetBaseURL() string
	GetAppID() string
	GetExpiryWindow() time.Duration
	GetHTTPTimeout() time.Duration
}

type Client struct{}

var _ ClientConfig = Client{}

// GetBaseURL returns the API root without a trailing slash (e.g. "https://stitch.mongodb.com")
func (Client) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "https://stitch.mongodb.com"), "/")
}

func (Client) GetAppID() string {
	return GetEnv(appIDVar, "")
}

// GetExpiryWindow is how close to expiry an access token may get before it is refreshed proactively
func (Client) GetExpiryWindow() time.Duration {
	return getDuration(expiryWindowVar, 10*time.Second)
}

func (Client) GetHTTPTimeout() time.Duration {
	return getDuration(httpTimeoutVar, 30*time.Second)
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
