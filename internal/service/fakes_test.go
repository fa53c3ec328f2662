package service

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/limiter"
	"github.com/and161185/typegpt/internal/llm"
	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/oauth"
	"github.com/and161185/typegpt/internal/repository"
)

/************ users & sessions ************/

type fakeUsers struct {
	mu        sync.Mutex
	byEmail   map[string]*model.User
	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers { return &fakeUsers{byEmail: map[string]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return errs.ErrAlreadyExists
	}
	c := *u
	c.CreatedAt = time.Now()
	f.byEmail[u.Email] = &c
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) byID(id string) (*model.User, bool) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

type fakeSessions struct {
	users     *fakeUsers
	rows      map[string]model.Session
	createErr error
	deleted   [][]byte
}

var _ repository.SessionRepository = (*fakeSessions)(nil)

func newFakeSessions(users *fakeUsers) *fakeSessions {
	return &fakeSessions{users: users, rows: map[string]model.Session{}}
}

func (f *fakeSessions) Create(_ context.Context, s model.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rows[string(s.TokenHash)] = s
	return nil
}

func (f *fakeSessions) Principal(_ context.Context, tokenHash []byte, now time.Time) (model.Principal, error) {
	s, ok := f.rows[string(tokenHash)]
	if !ok || !s.ExpiresAt.After(now) {
		return model.Principal{}, errs.ErrNotFound
	}
	u, ok := f.users.byID(s.UserID)
	if !ok {
		return model.Principal{}, errs.ErrNotFound
	}
	return u.Principal(), nil
}

func (f *fakeSessions) Delete(_ context.Context, tokenHash []byte) error {
	f.deleted = append(f.deleted, tokenHash)
	delete(f.rows, string(tokenHash))
	return nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

/************ federated ************/

type fakeGoogle struct {
	email string
	err   error
	calls int
}

var _ GoogleOAuth = (*fakeGoogle)(nil)

func (f *fakeGoogle) AuthCodeURL(redirectURI, state string) string {
	return "https://accounts.google.test/auth?redirect_uri=" + redirectURI + "&state=" + state
}

func (f *fakeGoogle) Exchange(_ context.Context, code, _ string) (oauth.Profile, error) {
	f.calls++
	if f.err != nil {
		return oauth.Profile{}, f.err
	}
	return oauth.Profile{Email: f.email}, nil
}

type fakePlatform struct {
	token     string
	err       error
	deleteErr error
	deleted   []string
}

var _ PlatformAuth = (*fakePlatform)(nil)

func (f *fakePlatform) RedirectURL(context.Context) (string, error) {
	return "https://platform.test/consent", f.err
}

func (f *fakePlatform) ExchangeCode(context.Context, string) (string, error) {
	return f.token, f.err
}

func (f *fakePlatform) DeleteSession(_ context.Context, token string) error {
	f.deleted = append(f.deleted, token)
	return f.deleteErr
}

type fakeState struct{ bad bool }

func (f fakeState) Issue() (string, error) { return "signed-state", nil }

func (f fakeState) Verify(state string) error {
	if f.bad || state != "signed-state" {
		return errs.ErrUnauthenticated
	}
	return nil
}

/************ conversations ************/

type memStore struct {
	mu      sync.Mutex
	threads map[uuid.UUID]*model.Thread
	msgs    map[uuid.UUID][]model.Message
	nextID  int64
	clock   time.Time

	appendErr   map[model.Role]error
	setTitleErr error
	touchErr    error
	touches     int
	titleSets   int
}

func newMemStore() *memStore {
	return &memStore{
		threads:   map[uuid.UUID]*model.Thread{},
		msgs:      map[uuid.UUID][]model.Message{},
		clock:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		appendErr: map[model.Role]error{},
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

type memThreads struct{ *memStore }

type memMessages struct{ *memStore }

var (
	_ repository.ThreadRepository  = memThreads{}
	_ repository.MessageRepository = memMessages{}
)

func (m memThreads) Create(_ context.Context, userID, title string) (*model.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	t := &model.Thread{ID: uuid.Must(uuid.NewV4()), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	m.threads[t.ID] = t
	c := *t
	return &c, nil
}

func (m memThreads) List(_ context.Context, userID string) ([]model.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Thread{}
	for _, t := range m.threads {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m memThreads) Get(_ context.Context, userID string, id uuid.UUID) (*model.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok || t.UserID != userID {
		return nil, errs.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m memThreads) Delete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok || t.UserID != userID {
		return errs.ErrNotFound
	}
	delete(m.msgs, id)
	delete(m.threads, id)
	return nil
}

func (m memThreads) SetTitle(_ context.Context, id uuid.UUID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setTitleErr != nil {
		return m.setTitleErr
	}
	t, ok := m.threads[id]
	if !ok {
		return errs.ErrNotFound
	}
	m.titleSets++
	t.Title = title
	t.UpdatedAt = m.tick()
	return nil
}

func (m memThreads) Touch(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	t, ok := m.threads[id]
	if !ok {
		return errs.ErrNotFound
	}
	m.touches++
	t.UpdatedAt = m.tick()
	return nil
}

func (m memMessages) Append(_ context.Context, threadID uuid.UUID, role model.Role, content string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.appendErr[role]; err != nil {
		return nil, err
	}
	if _, ok := m.threads[threadID]; !ok {
		return nil, errs.ErrNotFound
	}
	m.nextID++
	msg := model.Message{ID: m.nextID, ThreadID: threadID, Role: role, Content: content, CreatedAt: m.tick()}
	m.msgs[threadID] = append(m.msgs[threadID], msg)
	return &msg, nil
}

func (m memMessages) Count(_ context.Context, threadID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.msgs[threadID])), nil
}

func (m memMessages) List(_ context.Context, threadID uuid.UUID) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message{}, m.msgs[threadID]...), nil
}

func (m memMessages) ListBefore(_ context.Context, threadID uuid.UUID, beforeID int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Message{}
	for _, msg := range m.msgs[threadID] {
		if msg.ID < beforeID {
			out = append(out, msg)
		}
	}
	return out, nil
}

/************ providers ************/

// scriptedChat yields fragments, then fails with err if set.
type scriptedChat struct {
	mu        sync.Mutex
	fragments []string
	err       error
	calls     int
	histories [][]model.Turn
	messages  []string
	yielded   int
	onYield   func(i int)
}

var _ llm.ChatProvider = (*scriptedChat)(nil)

func (s *scriptedChat) Stream(_ context.Context, history []model.Turn, message string) iter.Seq2[string, error] {
	s.mu.Lock()
	s.calls++
	s.histories = append(s.histories, slices.Clone(history))
	s.messages = append(s.messages, message)
	s.mu.Unlock()
	return func(yield func(string, error) bool) {
		for i, f := range s.fragments {
			if s.onYield != nil {
				s.onYield(i)
			}
			s.mu.Lock()
			s.yielded++
			s.mu.Unlock()
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type fakeImageProvider struct {
	payload model.ImagePayload
	err     error
	calls   int
}

var _ llm.ImageProvider = (*fakeImageProvider)(nil)

func (f *fakeImageProvider) Generate(context.Context, string, string) (model.ImagePayload, error) {
	f.calls++
	return f.payload, f.err
}

type fakeImages struct {
	rows      []model.Image
	createErr error
}

var _ repository.ImageRepository = (*fakeImages)(nil)

func (f *fakeImages) Create(_ context.Context, img *model.Image) error {
	if f.createErr != nil {
		return f.createErr
	}
	img.ID = int64(len(f.rows) + 1)
	img.CreatedAt = time.Now()
	f.rows = append(f.rows, *img)
	return nil
}

func (f *fakeImages) List(_ context.Context, userID string) ([]model.Image, error) {
	out := []model.Image{}
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

/************ sink ************/

type recordingSink struct {
	mu     sync.Mutex
	events []model.StreamEvent
	failAt int // fail the n-th send (1-based); 0 never
}

func (s *recordingSink) Send(ev model.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.events)+1 == s.failAt {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, ev)
	return nil
}
