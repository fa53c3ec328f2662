// Package crypto implements server-side password hashing and opaque session tokens.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is tuned for roughly 100ms per verification.
const bcryptCost = 10

// OAuthPasswordHash marks accounts created through federated login.
// It is not a valid bcrypt hash, so password login can never match it.
const OAuthPasswordHash = "oauth-google"

// tokenBytes is the entropy of a session token (256 bits).
const tokenBytes = 32

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(password, hash string) bool {
	if hash == "" || hash == OAuthPasswordHash {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewToken returns a URL-safe random opaque token.
func NewToken() (string, error) {
	b, err := RandBytes(tokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenDigest returns the digest under which a token is stored.
func TokenDigest(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}
