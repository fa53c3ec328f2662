// Package identity resolves the principal behind an inbound request.
//
// Strategies are tried in a fixed order. A strategy that finds no credential
// it understands returns ErrNotApplicable and the next one is tried; any other
// error stops the chain.
package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

// Cookie names of the two session carriers.
const (
	SessionCookie         = "typegpt_session"
	PlatformSessionCookie = "platform_session_token"
)

// ErrNotApplicable means a strategy found nothing to resolve.
var ErrNotApplicable = errors.New("identity: strategy not applicable")

// Strategy resolves a principal from one kind of credential.
type Strategy interface {
	Resolve(ctx context.Context, r *http.Request) (model.Principal, error)
}

// Chain is an ordered list of strategies.
type Chain []Strategy

// Resolve returns the first principal a strategy resolves,
// or ErrUnauthenticated when none applies.
func (c Chain) Resolve(ctx context.Context, r *http.Request) (model.Principal, error) {
	for _, s := range c {
		p, err := s.Resolve(ctx, r)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotApplicable) {
			return model.Principal{}, err
		}
	}
	return model.Principal{}, errs.ErrUnauthenticated
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
