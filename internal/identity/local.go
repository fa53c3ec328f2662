package identity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/and161185/typegpt/internal/crypto"
	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

// SessionLookup resolves a stored session digest.
type SessionLookup interface {
	Principal(ctx context.Context, tokenHash []byte, now time.Time) (model.Principal, error)
}

// Local resolves the local session cookie against the session store.
// An unknown or expired token is not applicable, so the chain may still
// try the platform session.
type Local struct {
	Sessions SessionLookup
	Now      func() time.Time
}

// Resolve implements Strategy.
func (l Local) Resolve(ctx context.Context, r *http.Request) (model.Principal, error) {
	token := cookieValue(r, SessionCookie)
	if token == "" {
		return model.Principal{}, ErrNotApplicable
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	p, err := l.Sessions.Principal(ctx, crypto.TokenDigest(token), now())
	if errors.Is(err, errs.ErrNotFound) {
		return model.Principal{}, ErrNotApplicable
	}
	return p, err
}
