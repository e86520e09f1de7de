package redirect

import (
	"crypto/rand"
	"fmt"
)

const (
	stateLength   = 64
	stateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewState returns a 64 character alphanumeric anti-forgery token.
func NewState() (string, error) {
	// largest multiple of the alphabet size that fits in a byte, to avoid modulo bias
	const limit = 256 - 256%len(stateAlphabet)

	out := make([]byte, 0, stateLength)
	buf := make([]byte, stateLength)
	for len(out) < stateLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate state: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, stateAlphabet[int(b)%len(stateAlphabet)])
			if len(out) == stateLength {
				break
			}
		}
	}
	return string(out), nil
}
