package httpserver

import (
	"net/http"
	"time"

	"github.com/and161185/typegpt/internal/identity"
	"github.com/and161185/typegpt/internal/model"
)

// CookieConfig controls the session carriers.
type CookieConfig struct {
	Secure bool
	TTL    time.Duration
}

// setSession writes the cookie that matches the grant kind.
func (c CookieConfig) setSession(w http.ResponseWriter, g model.SessionGrant) {
	name := identity.SessionCookie
	if g.Kind == model.SessionPlatform {
		name = identity.PlatformSessionCookie
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    g.Token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		Expires:  g.ExpiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessions expires both session cookies.
func (c CookieConfig) clearSessions(w http.ResponseWriter) {
	for _, name := range []string{identity.SessionCookie, identity.PlatformSessionCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
