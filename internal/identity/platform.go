package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

// PlatformUsers validates platform session tokens.
type PlatformUsers interface {
	User(ctx context.Context, sessionToken string) (model.Principal, error)
}

// Platform resolves the hosted platform's session cookie.
// It is the last strategy, so a rejected token is a hard ErrUnauthenticated.
type Platform struct {
	Users PlatformUsers
}

// Resolve implements Strategy.
func (p Platform) Resolve(ctx context.Context, r *http.Request) (model.Principal, error) {
	token := cookieValue(r, PlatformSessionCookie)
	if token == "" || p.Users == nil {
		return model.Principal{}, ErrNotApplicable
	}
	pr, err := p.Users.User(ctx, token)
	switch {
	case err == nil:
		return pr, nil
	case errors.Is(err, errs.ErrUnauthenticated), errors.Is(err, errs.ErrNotFound):
		return model.Principal{}, errs.ErrUnauthenticated
	default:
		return model.Principal{}, err
	}
}
