// Package service contains the application services: authentication,
// conversations, the streaming relay and image generation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/typegpt/internal/crypto"
	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/limiter"
	"github.com/and161185/typegpt/internal/metrics"
	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/oauth"
	"github.com/and161185/typegpt/internal/repository"
)

// MinPasswordLen is the shortest accepted password, in characters.
const MinPasswordLen = 6

// User id prefixes tell password accounts from federated ones.
const (
	passwordUserPrefix = "ep-"
	googleUserPrefix   = "google-"
)

// AuthService defines registration, login and federated session exchange.
type AuthService interface {
	// Register creates a password account and opens a session for it.
	Register(ctx context.Context, email, password string) (model.SessionGrant, error)
	// Login applies rate limiting by (email, ip) and opens a session.
	Login(ctx context.Context, email, password, ip string) (model.SessionGrant, error)
	// OAuthRedirectURL returns the consent URL of the configured federated provider.
	OAuthRedirectURL(ctx context.Context, redirectURI string) (string, error)
	// ExchangeCode trades an authorization code for a session.
	ExchangeCode(ctx context.Context, code, state, redirectURI string) (model.SessionGrant, error)
	// Logout deletes the local session and invalidates the platform session, if any.
	Logout(ctx context.Context, localToken, platformToken string) error
}

// GoogleOAuth is the direct Google authorization-code client.
type GoogleOAuth interface {
	AuthCodeURL(redirectURI, state string) string
	Exchange(ctx context.Context, code, redirectURI string) (oauth.Profile, error)
}

// PlatformAuth is the hosted users platform.
type PlatformAuth interface {
	RedirectURL(ctx context.Context) (string, error)
	ExchangeCode(ctx context.Context, code string) (string, error)
	DeleteSession(ctx context.Context, sessionToken string) error
}

// StateSigner issues and verifies OAuth state values.
type StateSigner interface {
	Issue() (string, error)
	Verify(state string) error
}

// AuthConfig carries the optional collaborators of AuthServiceImpl.
// Google takes priority over Platform; with neither, federated login is ErrNotConfigured.
type AuthConfig struct {
	SessionTTL time.Duration
	Google     GoogleOAuth
	Platform   PlatformAuth
	State      StateSigner
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type AuthServiceImpl struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	lim      limiter.Limiter
	cfg      AuthConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, sessions repository.SessionRepository, lim limiter.Limiter, cfg AuthConfig) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, sessions: sessions, lim: lim, cfg: cfg, log: log, now: time.Now}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Register validates input, stores a bcrypt hash and issues a session.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password string) (model.SessionGrant, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" || !strings.Contains(email, "@") {
		return model.SessionGrant{}, fmt.Errorf("%w: email and password required", errs.ErrInvalidInput)
	}
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return model.SessionGrant{}, fmt.Errorf("%w: password must be at least %d characters", errs.ErrInvalidInput, MinPasswordLen)
	}

	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return model.SessionGrant{}, err
	}
	u, err := newUser(passwordUserPrefix, email, hash)
	if err != nil {
		return model.SessionGrant{}, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.SessionGrant{}, err
	}
	return s.issueSession(ctx, u.Principal())
}

// Login authenticates with rate limiting by (email, ip).
// Unknown email and wrong password are the same ErrInvalidCredential.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.SessionGrant, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return model.SessionGrant{}, fmt.Errorf("%w: email and password required", errs.ErrInvalidInput)
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.SessionGrant{}, err
	}
	if !allowed {
		s.cfg.Metrics.Login("password", "rate_limited")
		return model.SessionGrant{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.SessionGrant{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword(password, u.PasswordHash) {
		s.cfg.Metrics.Login("password", "invalid")
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.SessionGrant{}, errs.ErrRateLimited
		}
		return model.SessionGrant{}, errs.ErrInvalidCredential
	}

	// best-effort
	_ = s.lim.Success(ctx, email, ipHash)
	s.cfg.Metrics.Login("password", "ok")
	return s.issueSession(ctx, u.Principal())
}

// OAuthRedirectURL builds the consent URL. Google gets a signed state.
func (s *AuthServiceImpl) OAuthRedirectURL(ctx context.Context, redirectURI string) (string, error) {
	switch {
	case s.cfg.Google != nil:
		state, err := s.cfg.State.Issue()
		if err != nil {
			return "", err
		}
		return s.cfg.Google.AuthCodeURL(redirectURI, state), nil
	case s.cfg.Platform != nil:
		return s.cfg.Platform.RedirectURL(ctx)
	default:
		return "", errs.ErrNotConfigured
	}
}

// ExchangeCode finishes federated login. With direct Google the account is
// found or created by email and a local session is issued, so later requests
// take the local-session path. With the platform, its session token is returned.
func (s *AuthServiceImpl) ExchangeCode(ctx context.Context, code, state, redirectURI string) (model.SessionGrant, error) {
	if code == "" {
		return model.SessionGrant{}, fmt.Errorf("%w: no authorization code provided", errs.ErrInvalidInput)
	}
	if state != "" && s.cfg.State != nil {
		if err := s.cfg.State.Verify(state); err != nil {
			return model.SessionGrant{}, err
		}
	}

	switch {
	case s.cfg.Google != nil:
		profile, err := s.cfg.Google.Exchange(ctx, code, redirectURI)
		if err != nil {
			s.cfg.Metrics.Login("google", "error")
			return model.SessionGrant{}, err
		}
		u, err := s.findOrCreateFederated(ctx, profile.Email)
		if err != nil {
			return model.SessionGrant{}, err
		}
		s.cfg.Metrics.Login("google", "ok")
		return s.issueSession(ctx, u.Principal())

	case s.cfg.Platform != nil:
		token, err := s.cfg.Platform.ExchangeCode(ctx, code)
		if err != nil {
			s.cfg.Metrics.Login("platform", "error")
			return model.SessionGrant{}, err
		}
		s.cfg.Metrics.Login("platform", "ok")
		return model.SessionGrant{
			Kind:      model.SessionPlatform,
			Token:     token,
			ExpiresAt: s.now().Add(s.cfg.SessionTTL),
		}, nil

	default:
		return model.SessionGrant{}, errs.ErrNotConfigured
	}
}

// Logout is idempotent. A platform failure is logged, not returned:
// the cookies are cleared regardless.
func (s *AuthServiceImpl) Logout(ctx context.Context, localToken, platformToken string) error {
	if platformToken != "" && s.cfg.Platform != nil {
		if err := s.cfg.Platform.DeleteSession(ctx, platformToken); err != nil {
			s.log.Warn("platform session delete failed", zap.Error(err))
		}
	}
	if localToken == "" {
		return nil
	}
	return s.sessions.Delete(ctx, pkgcrypto.TokenDigest(localToken))
}

func (s *AuthServiceImpl) findOrCreateFederated(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	u, err = newUser(googleUserPrefix, email, pkgcrypto.OAuthPasswordHash)
	if err != nil {
		return nil, err
	}
	err = s.users.Create(ctx, u)
	if errors.Is(err, errs.ErrAlreadyExists) {
		// lost a race with a concurrent first login
		return s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// issueSession stores the digest of a fresh token and returns the plaintext.
func (s *AuthServiceImpl) issueSession(ctx context.Context, p model.Principal) (model.SessionGrant, error) {
	token, err := pkgcrypto.NewToken()
	if err != nil {
		return model.SessionGrant{}, err
	}
	exp := s.now().Add(s.cfg.SessionTTL)
	if err := s.sessions.Create(ctx, model.Session{
		TokenHash: pkgcrypto.TokenDigest(token),
		UserID:    p.ID,
		ExpiresAt: exp,
	}); err != nil {
		return model.SessionGrant{}, err
	}
	return model.SessionGrant{Kind: model.SessionLocal, Token: token, ExpiresAt: exp, Principal: p}, nil
}

func newUser(prefix, email, hash string) (*model.User, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &model.User{ID: prefix + id.String(), Email: email, PasswordHash: hash}, nil
}
