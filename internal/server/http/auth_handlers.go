package httpserver

import (
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/identity"
	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/oauth"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	Success bool            `json:"success"`
	User    model.Principal `json:"user"`
}

type codeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.d.Auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logFailure("register", err)
		writeError(w, err)
		return
	}
	s.d.Cookies.setSession(w, g)
	writeJSON(w, http.StatusCreated, userResponse{Success: true, User: g.Principal})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.d.Auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		s.logFailure("login", err)
		writeError(w, err)
		return
	}
	s.d.Cookies.setSession(w, g)
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: g.Principal})
}

func (s *Server) redirectURI(r *http.Request) string {
	return oauth.RedirectURI(s.d.GoogleRedirectURI, s.d.ClientURL, r)
}

func (s *Server) oauthRedirectURL(w http.ResponseWriter, r *http.Request) {
	u, err := s.d.Auth.OAuthRedirectURL(r.Context(), s.redirectURI(r))
	if err != nil {
		s.logFailure("oauth redirect url", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": u})
}

// redirectURIDebug shows which callback URL must be registered with Google.
func (s *Server) redirectURIDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"redirectUri":      s.redirectURI(r),
		"explicitOverride": s.d.GoogleRedirectURI != "",
		"clientUrl":        s.d.ClientURL,
	})
}

func (s *Server) exchangeCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.d.Auth.ExchangeCode(r.Context(), req.Code, req.State, s.redirectURI(r))
	if err != nil {
		s.logFailure("code exchange", err)
		if errors.Is(err, errs.ErrProvider) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Authentication failed", Code: "provider_error"})
			return
		}
		writeError(w, err)
		return
	}
	s.d.Cookies.setSession(w, g)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	writeJSON(w, http.StatusOK, p)
}

// logout always succeeds for the caller; store failures are only logged.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	local := cookieValue(r, identity.SessionCookie)
	platform := cookieValue(r, identity.PlatformSessionCookie)
	if err := s.d.Auth.Logout(r.Context(), local, platform); err != nil {
		s.log.Warn("logout cleanup failed", zap.Error(err))
	}
	s.d.Cookies.clearSessions(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// logFailure logs server-side failures. Client mistakes stay at debug level.
func (s *Server) logFailure(op string, err error) {
	status, _ := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(op+" failed", zap.Error(err))
		return
	}
	s.log.Debug(op+" rejected", zap.Error(err))
}

// clientIP is the peer address without port. Forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
