// Package oauth holds the federated login clients: direct Google OAuth2,
// the hosted users platform, and the signer for the OAuth state parameter.
package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/typegpt/internal/crypto"
	"github.com/and161185/typegpt/internal/errs"
)

const stateIssuer = "typegpt"

// StateSigner issues and verifies short-lived HS256 state tokens
// that tie an authorization redirect to the code exchange that follows it.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner returns a signer. An empty key is replaced by a random per-process key.
func NewStateSigner(key []byte, ttl time.Duration) (*StateSigner, error) {
	if len(key) == 0 {
		k, err := crypto.RandBytes(32)
		if err != nil {
			return nil, err
		}
		key = k
	}
	return &StateSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a fresh signed state.
func (s *StateSigner) Issue() (string, error) {
	nonce, err := crypto.NewToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		ID:        nonce,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature, issuer and expiry. Any failure is ErrUnauthenticated.
func (s *StateSigner) Verify(state string) error {
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.key, nil
		},
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("oauth state: %w: %v", errs.ErrUnauthenticated, err)
	}
	return nil
}
