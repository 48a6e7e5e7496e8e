package helpers

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken returns an opaque token of 2*length hexadecimal characters
// drawn from crypto/rand. It fails only when the entropy source is
// unavailable, which is not recoverable.
func GenerateToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
