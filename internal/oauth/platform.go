package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

// apiKeyHeader carries the service credential on every platform call.
const apiKeyHeader = "X-Api-Key"

// Platform is a client of the hosted users platform. The platform owns the
// Google consent flow and issues its own session tokens.
type Platform struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPlatform returns a platform client. A nil httpClient uses http.DefaultClient.
func NewPlatform(baseURL, apiKey string, httpClient *http.Client) *Platform {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Platform{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, httpClient: httpClient}
}

// RedirectURL asks the platform for a Google consent URL.
func (p *Platform) RedirectURL(ctx context.Context) (string, error) {
	var out struct {
		RedirectURL string `json:"redirect_url"`
	}
	if err := p.do(ctx, http.MethodGet, "/oauth/google/redirect_url", "", nil, &out); err != nil {
		return "", err
	}
	if out.RedirectURL == "" {
		return "", fmt.Errorf("platform redirect url: %w: empty", errs.ErrProvider)
	}
	return out.RedirectURL, nil
}

// ExchangeCode trades an authorization code for a platform session token.
func (p *Platform) ExchangeCode(ctx context.Context, code string) (string, error) {
	var out struct {
		SessionToken string `json:"session_token"`
	}
	in := map[string]string{"code": code}
	if err := p.do(ctx, http.MethodPost, "/sessions", "", in, &out); err != nil {
		return "", err
	}
	if out.SessionToken == "" {
		return "", fmt.Errorf("platform exchange: %w: empty session token", errs.ErrProvider)
	}
	return out.SessionToken, nil
}

// User resolves a platform session token. A rejected token is ErrUnauthenticated.
func (p *Platform) User(ctx context.Context, sessionToken string) (model.Principal, error) {
	var out model.Principal
	if err := p.do(ctx, http.MethodGet, "/users/me", sessionToken, nil, &out); err != nil {
		return model.Principal{}, err
	}
	if out.ID == "" {
		return model.Principal{}, errs.ErrUnauthenticated
	}
	return out, nil
}

// DeleteSession invalidates a platform session. Unknown tokens are not an error.
func (p *Platform) DeleteSession(ctx context.Context, sessionToken string) error {
	err := p.do(ctx, http.MethodDelete, "/sessions", sessionToken, nil, nil)
	if err != nil && (errors.Is(err, errs.ErrUnauthenticated) || errors.Is(err, errs.ErrNotFound)) {
		return nil
	}
	return err
}

func (p *Platform) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(apiKeyHeader, p.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform %s %s: %w: %v", method, path, errs.ErrProvider, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.ErrUnauthenticated
	case resp.StatusCode == http.StatusNotFound:
		return errs.ErrNotFound
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("platform %s %s: %w: status %d", method, path, errs.ErrProvider, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform %s %s decode: %w: %v", method, path, errs.ErrProvider, err)
	}
	return nil
}
