package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/and161185/typegpt/internal/errs"
)

// GoogleUserInfoURL is the profile endpoint queried after the code exchange.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Profile is the part of a federated profile the service keeps.
type Profile struct {
	Email string // trimmed and lowercased
}

// Google performs the authorization-code flow against Google directly.
type Google struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	userInfoURL  string
	httpClient   *http.Client
}

// GoogleOption customizes a Google client.
type GoogleOption func(*Google)

// WithEndpoint overrides the authorization and token endpoints.
func WithEndpoint(ep oauth2.Endpoint) GoogleOption { return func(g *Google) { g.endpoint = ep } }

// WithUserInfoURL overrides the profile endpoint.
func WithUserInfoURL(u string) GoogleOption { return func(g *Google) { g.userInfoURL = u } }

// WithHTTPClient sets the client used for token and profile calls.
func WithHTTPClient(c *http.Client) GoogleOption { return func(g *Google) { g.httpClient = c } }

// NewGoogle returns a client for the given OAuth application.
func NewGoogle(clientID, clientSecret string, opts ...GoogleOption) *Google {
	g := &Google{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoint:     google.Endpoint,
		userInfoURL:  GoogleUserInfoURL,
		httpClient:   http.DefaultClient,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Google) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		Endpoint:     g.endpoint,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

// AuthCodeURL builds the consent URL. redirectURI must match the one later passed to Exchange.
func (g *Google) AuthCodeURL(redirectURI, state string) string {
	return g.config(redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a token and reads the caller's profile.
// Upstream failures are ErrProvider; a profile without email is ErrMissingEmail.
func (g *Google) Exchange(ctx context.Context, code, redirectURI string) (Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	cfg := g.config(redirectURI)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("google token exchange: %w: %v", errs.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("google userinfo: %w: %v", errs.ErrProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("google userinfo: %w: status %d", errs.ErrProvider, resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Profile{}, fmt.Errorf("google userinfo decode: %w: %v", errs.ErrProvider, err)
	}
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" {
		return Profile{}, errs.ErrMissingEmail
	}
	return Profile{Email: email}, nil
}

// RedirectURI derives the callback URL registered with Google.
// An explicit URI wins (with /auth/callback appended when absent), then the client URL,
// then the origin of the current request.
func RedirectURI(explicit, clientURL string, r *http.Request) string {
	if u := strings.TrimSuffix(strings.TrimSpace(explicit), "/"); u != "" {
		if strings.Contains(u, "/auth/callback") {
			return u
		}
		return u + "/auth/callback"
	}
	if u := strings.TrimSuffix(strings.TrimSpace(clientURL), "/"); u != "" {
		return u + "/auth/callback"
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/auth/callback"
}
