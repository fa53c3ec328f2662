// Package httpserver exposes the gateway over HTTP: JSON endpoints,
// server-sent event streams and cookie-carried sessions.
package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/typegpt/internal/metrics"
	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/service"
)

// Relayer runs one streamed exchange on a thread.
type Relayer interface {
	Send(ctx context.Context, p model.Principal, threadID uuid.UUID, content string, sink service.EventSink) error
}

// Pinger reports store liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Server.
type Deps struct {
	Auth     service.AuthService
	Chats    service.ChatService
	Relay    Relayer
	Images   service.ImageService
	Identity Resolver
	Health   Pinger

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // nil: /metrics is not mounted

	Cookies           CookieConfig
	GoogleRedirectURI string
	ClientURL         string

	Log *zap.Logger
}

// Server owns the HTTP routes.
type Server struct {
	d   Deps
	log *zap.Logger
}

// New builds a Server. A nil logger is replaced with a no-op one.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Server{d: d, log: d.Log}
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logging(s.log))
	r.Use(Metrics(s.d.Metrics))
	r.Use(Recover(s.log))

	r.Get("/healthz", s.health)
	if s.d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.d.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)
		r.Get("/oauth/redirect_url", s.oauthRedirectURL)
		r.Get("/oauth/google/redirect_url", s.oauthRedirectURL)
		r.Get("/oauth/google/redirect_uri_debug", s.redirectURIDebug)
		r.Post("/sessions", s.exchangeCode)
		r.Get("/logout", s.logout)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(s.d.Identity, s.log))

			r.Get("/me", s.me)
			r.Get("/users/me", s.me)

			r.Get("/chats", s.listChats)
			r.Post("/chats", s.createChat)
			r.Delete("/chats/{id}", s.deleteChat)
			r.Get("/chats/{id}/messages", s.listMessages)
			r.Post("/chats/{id}/messages", s.sendMessage)

			r.Post("/images/generate", s.generateImage)
			r.Get("/images", s.listImages)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.d.Health != nil {
		if err := s.d.Health.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
