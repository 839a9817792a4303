package common

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// ShareTokenBytes is the entropy of a share token before encoding.
const ShareTokenBytes = 32

// MakeRandToken returns a URL-safe token built from size bytes of
// cryptographically secure randomness.
func MakeRandToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("rand read: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
