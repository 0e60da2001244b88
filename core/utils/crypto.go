package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandToken returns a URL-safe random string built from n random bytes.
// Used for session identifiers (32 bytes = 256 bits of entropy).
func RandToken(n int) (string, error) {
	b, err := RandBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func ConstantTimeEquals(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
