package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/identity"
	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/service"
)

var alice = model.Principal{ID: "ep-alice", Email: "alice@example.com"}

/************ auth ************/

type fakeAuth struct {
	mu         sync.Mutex
	grant      model.SessionGrant
	err        error
	lastIP     string
	lastEmail  string
	lastState  string
	lastURI    string
	logoutArgs [2]string
	logoutErr  error
	redirect   string
}

var _ service.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) Register(_ context.Context, email, _ string) (model.SessionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEmail = email
	return f.grant, f.err
}

func (f *fakeAuth) Login(_ context.Context, email, _, ip string) (model.SessionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEmail, f.lastIP = email, ip
	return f.grant, f.err
}

func (f *fakeAuth) OAuthRedirectURL(_ context.Context, redirectURI string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURI = redirectURI
	return f.redirect, f.err
}

func (f *fakeAuth) ExchangeCode(_ context.Context, _, state, redirectURI string) (model.SessionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastState, f.lastURI = state, redirectURI
	return f.grant, f.err
}

func (f *fakeAuth) Logout(_ context.Context, local, platform string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutArgs = [2]string{local, platform}
	return f.logoutErr
}

/************ identity ************/

// cookieResolver accepts exactly one local session token.
type cookieResolver struct {
	token string
	p     model.Principal
	err   error
}

func (c cookieResolver) Resolve(_ context.Context, r *http.Request) (model.Principal, error) {
	if c.err != nil {
		return model.Principal{}, c.err
	}
	ck, err := r.Cookie(identity.SessionCookie)
	if err != nil || ck.Value != c.token {
		return model.Principal{}, errs.ErrUnauthenticated
	}
	return c.p, nil
}

/************ chats ************/

type fakeChats struct {
	mu       sync.Mutex
	threads  map[uuid.UUID]model.Thread
	messages map[uuid.UUID][]model.Message
	err      error
}

var _ service.ChatService = (*fakeChats)(nil)

func newFakeChats() *fakeChats {
	return &fakeChats{threads: map[uuid.UUID]model.Thread{}, messages: map[uuid.UUID][]model.Message{}}
}

func (f *fakeChats) owned(p model.Principal, id uuid.UUID) (model.Thread, error) {
	t, ok := f.threads[id]
	if !ok || t.UserID != p.ID {
		return model.Thread{}, errs.ErrNotFound
	}
	return t, nil
}

func (f *fakeChats) List(_ context.Context, p model.Principal) ([]model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Thread
	for _, t := range f.threads {
		if t.UserID == p.ID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeChats) Create(_ context.Context, p model.Principal, title string) (*model.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if title == "" {
		title = service.DefaultThreadTitle
	}
	now := time.Now()
	t := model.Thread{ID: uuid.Must(uuid.NewV4()), UserID: p.ID, Title: title, CreatedAt: now, UpdatedAt: now}
	f.threads[t.ID] = t
	return &t, nil
}

func (f *fakeChats) Delete(_ context.Context, p model.Principal, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(p, id); err != nil {
		return err
	}
	delete(f.threads, id)
	delete(f.messages, id)
	return nil
}

func (f *fakeChats) Messages(_ context.Context, p model.Principal, id uuid.UUID) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(p, id); err != nil {
		return nil, err
	}
	return f.messages[id], nil
}

func (f *fakeChats) History(ctx context.Context, p model.Principal, id uuid.UUID) ([]model.Turn, error) {
	msgs, err := f.Messages(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return service.Transcript(msgs), nil
}

func (f *fakeChats) add(id uuid.UUID, role model.Role, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[id] = append(f.messages[id], model.Message{
		ID: int64(len(f.messages[id]) + 1), ThreadID: id, Role: role, Content: content, CreatedAt: time.Now(),
	})
}

/************ relay ************/

// echoRelay checks ownership against chats, stores both sides and streams
// the reply word by word.
type echoRelay struct {
	chats    *fakeChats
	reply    []string
	failWith string // terminal error reason instead of done
	preErr   error
}

func (e *echoRelay) Send(ctx context.Context, p model.Principal, id uuid.UUID, content string, sink service.EventSink) error {
	if e.preErr != nil {
		return e.preErr
	}
	if strings.TrimSpace(content) == "" {
		return errs.ErrInvalidInput
	}
	e.chats.mu.Lock()
	_, err := e.chats.owned(p, id)
	e.chats.mu.Unlock()
	if err != nil {
		return err
	}
	e.chats.add(id, model.RoleUser, content)
	for _, frag := range e.reply {
		if err := sink.Send(model.StreamEvent{Content: frag}); err != nil {
			return err
		}
	}
	if e.failWith != "" {
		return sink.Send(model.StreamEvent{Error: e.failWith})
	}
	e.chats.add(id, model.RoleAssistant, strings.Join(e.reply, ""))
	return sink.Send(model.StreamEvent{Done: true})
}

/************ images ************/

type fakeImages struct {
	img        *model.Image
	err        error
	lastPrompt string
	lastRatio  string
}

var _ service.ImageService = (*fakeImages)(nil)

func (f *fakeImages) Generate(_ context.Context, p model.Principal, prompt, ratio string) (*model.Image, error) {
	f.lastPrompt, f.lastRatio = prompt, ratio
	if f.err != nil {
		return nil, f.err
	}
	img := *f.img
	img.UserID = p.ID
	return &img, nil
}

func (f *fakeImages) List(_ context.Context, _ model.Principal) ([]model.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

/************ harness ************/

const aliceToken = "alice-token"

type harness struct {
	auth   *fakeAuth
	chats  *fakeChats
	relay  *echoRelay
	images *fakeImages
	srv    *httptest.Server
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	chats := newFakeChats()
	h := &harness{
		auth:   &fakeAuth{},
		chats:  chats,
		relay:  &echoRelay{chats: chats, reply: []string{"Hel", "lo"}},
		images: &fakeImages{img: &model.Image{ID: 1, Prompt: "cat", ImageURL: "data:image/png;base64,AQID", AspectRatio: "1:1"}},
	}
	d := Deps{
		Auth:     h.auth,
		Chats:    h.chats,
		Relay:    h.relay,
		Images:   h.images,
		Identity: cookieResolver{token: aliceToken, p: alice},
		Health:   fakePinger{},
		Cookies:  CookieConfig{Secure: true, TTL: 24 * time.Hour},
		Log:      zaptest.NewLogger(t),
	}
	for _, m := range mutate {
		m(&d)
	}
	h.srv = httptest.NewServer(New(d).Handler())
	t.Cleanup(h.srv.Close)
	return h
}

// do sends a request, authenticated as alice when auth is set.
func (h *harness) do(t *testing.T, method, path, body string, auth bool) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.AddCookie(&http.Cookie{Name: identity.SessionCookie, Value: aliceToken})
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
