// Package cryptox contains the password hashing and random token primitives
// used by the authentication services.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// HashIterations is the PBKDF2 iteration count for stored credentials.
	// Changing it invalidates every existing digest.
	HashIterations = 100_000

	// SaltLength is the size of a freshly generated salt in bytes.
	SaltLength = 32

	// KeyLength is the size of the derived digest in bytes.
	KeyLength = 32
)

var ErrEmptySalt = errors.New("empty salt")

// PasswordHasher derives and verifies salted PBKDF2-HMAC-SHA256 digests.
// It holds no mutable state and is safe for concurrent use.
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher returns a hasher using HashIterations.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{iterations: HashIterations}
}

// NewPasswordHasherWithIterations is meant for tests and tooling that need a
// cheaper derivation. Values below 1 fall back to HashIterations.
func NewPasswordHasherWithIterations(iterations int) *PasswordHasher {
	if iterations < 1 {
		iterations = HashIterations
	}
	return &PasswordHasher{iterations: iterations}
}

// Hash derives the digest of password. A nil salt is replaced with SaltLength
// fresh random bytes; the salt actually used is returned.
func (h *PasswordHasher) Hash(password string, salt []byte) (digest []byte, usedSalt []byte, err error) {
	if salt == nil {
		salt, err = RandomBytes(SaltLength)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(salt) == 0 {
		return nil, nil, ErrEmptySalt
	}
	return h.derive(password, salt), salt, nil
}

// Verify recomputes the digest and compares it in constant time.
func (h *PasswordHasher) Verify(password string, digest, salt []byte) bool {
	if len(digest) == 0 || len(salt) == 0 {
		return false
	}
	candidate := h.derive(password, salt)
	defer WipeByteArray(candidate)
	return subtle.ConstantTimeCompare(candidate, digest) == 1
}

func (h *PasswordHasher) derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, h.iterations, KeyLength, sha256.New)
}
