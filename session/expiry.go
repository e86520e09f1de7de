package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsAccessTokenExpired reports whether the stored access token expires within the given window.
// The token is decoded without verifying its signature; this is a hint to refresh early, not a
// security check. An absent or malformed token, or one without an exp claim, is never expired.
func (s *Store) IsAccessTokenExpired(ctx context.Context, within time.Duration) bool {
	token, err := s.AccessToken(ctx)
	if err != nil || token == "" {
		return false
	}

	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	return !s.nowTime().Before(exp.Add(-within))
}

func tokenExpiry(rawToken string) (time.Time, bool) {
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := unverified.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
