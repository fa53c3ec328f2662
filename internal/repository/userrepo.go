// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/typegpt/internal/model"
)

// UserRepository stores local credentials.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrAlreadyExists if the email is taken.
	Create(ctx context.Context, u *model.User) error
	// GetByEmail loads a user by lowercased email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// SessionRepository stores local sessions keyed by token digest.
type SessionRepository interface {
	// Create inserts a session.
	Create(ctx context.Context, s model.Session) error
	// Principal resolves a non-expired session joined with its user.
	Principal(ctx context.Context, tokenHash []byte, now time.Time) (model.Principal, error)
	// Delete removes a session; deleting an absent session is not an error.
	Delete(ctx context.Context, tokenHash []byte) error
}
