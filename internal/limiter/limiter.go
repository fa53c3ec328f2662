// Package limiter throttles password logins per (email, client address).
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login may be attempted now, and otherwise how long to wait.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it placed a block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Nop never blocks. It is used when no database-backed limiter is configured.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}

func (Nop) Success(context.Context, string, []byte) error { return nil }

func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}

// HashIP returns a stable digest of a client address so raw addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
