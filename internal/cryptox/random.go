package cryptox

import (
	"crypto/rand"
	"encoding/base64"
)

// SessionTokenBytes is the entropy of a session token (384 bits).
const SessionTokenBytes = 48

// RandomBytes returns size bytes from crypto/rand.
func RandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewSessionToken returns an unguessable, URL-safe session token.
func NewSessionToken() (string, error) {
	b, err := RandomBytes(SessionTokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray zeroes b. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// TokenPrefix shortens a token for logs and audit details so the full
// secret never leaves the session store.
func TokenPrefix(token string) string {
	const keep = 16
	if len(token) <= keep {
		return token
	}
	return token[:keep] + "..."
}
