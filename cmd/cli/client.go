package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/typegpt/internal/identity"
	"github.com/and161185/typegpt/internal/model"
)

// apiError is a non-2xx answer of the gateway.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Message, e.Code)
}

// client talks to the gateway API, carrying the stored session cookie.
type client struct {
	base    string
	http    *http.Client
	session *sessionFile
}

func newClient(base string, s *sessionFile) *client {
	return &client{base: strings.TrimSuffix(base, "/"), http: &http.Client{}, session: s}
}

func (c *client) request(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		req.AddCookie(&http.Cookie{Name: c.session.Cookie, Value: c.session.Value})
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		ae := &apiError{Status: resp.StatusCode}
		var eb struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&eb) == nil {
			ae.Message, ae.Code = eb.Error, eb.Code
		}
		return nil, ae
	}
	return resp, nil
}

// call sends in as JSON and decodes the answer into out, when set.
func (c *client) call(ctx context.Context, method, path string, in, out any) (*http.Response, error) {
	resp, err := c.request(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

// stream posts in and hands every server-sent event to fn until a terminal one.
func (c *client) stream(ctx context.Context, path string, in any, fn func(model.StreamEvent) error) error {
	resp, err := c.request(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return readEvents(resp.Body, fn)
}

// readEvents parses "data: <json>" frames. Lines of any other kind are skipped.
func readEvents(r io.Reader, fn func(model.StreamEvent) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev model.StreamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return fmt.Errorf("bad event %q: %w", line, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Terminal() {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// sessionFrom picks the session cookie set by a login-like response.
func sessionFrom(resp *http.Response) (sessionFile, error) {
	for _, ck := range resp.Cookies() {
		if ck.Name != identity.SessionCookie && ck.Name != identity.PlatformSessionCookie {
			continue
		}
		exp := ck.Expires
		if ck.MaxAge > 0 {
			exp = time.Now().Add(time.Duration(ck.MaxAge) * time.Second)
		}
		return sessionFile{Cookie: ck.Name, Value: ck.Value, ExpiresAt: exp}, nil
	}
	return sessionFile{}, fmt.Errorf("no session cookie in response")
}
