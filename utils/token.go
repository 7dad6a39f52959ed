package utils

import (
	"crypto/rand"
	"fmt"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRegistrationToken returns a random upper-case alphanumeric token of the
// given length. Tokens are single-use credentials, so this uses crypto/rand
// rather than the math/rand fallback the allocator is allowed to use.
func NewRegistrationToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}
