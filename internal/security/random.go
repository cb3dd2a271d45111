package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewRandomToken returns n random bytes hex encoded.
func NewRandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
