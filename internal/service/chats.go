package service

import (
	"context"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/repository"
)

// DefaultThreadTitle names threads created without a title.
const DefaultThreadTitle = "New Chat"

// titleRunes bounds a title derived from the first message.
const titleRunes = 50

// ChatService defines owner-scoped thread operations. A thread owned by
// someone else is reported exactly like a missing one: errs.ErrNotFound.
type ChatService interface {
	// List returns the caller's threads, most recently updated first.
	List(ctx context.Context, p model.Principal) ([]model.Thread, error)
	// Create starts an empty thread.
	Create(ctx context.Context, p model.Principal, title string) (*model.Thread, error)
	// Delete removes a thread together with its messages.
	Delete(ctx context.Context, p model.Principal, id uuid.UUID) error
	// Messages returns the thread's messages in creation order.
	Messages(ctx context.Context, p model.Principal, id uuid.UUID) ([]model.Message, error)
	// History returns the thread as provider-ready turns.
	History(ctx context.Context, p model.Principal, id uuid.UUID) ([]model.Turn, error)
}

type ChatServiceImpl struct {
	threads  repository.ThreadRepository
	messages repository.MessageRepository
}

// NewChatService constructs ChatService.
func NewChatService(threads repository.ThreadRepository, messages repository.MessageRepository) *ChatServiceImpl {
	return &ChatServiceImpl{threads: threads, messages: messages}
}

// List implements ChatService.
func (s *ChatServiceImpl) List(ctx context.Context, p model.Principal) ([]model.Thread, error) {
	return s.threads.List(ctx, p.ID)
}

// Create implements ChatService.
func (s *ChatServiceImpl) Create(ctx context.Context, p model.Principal, title string) (*model.Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultThreadTitle
	}
	return s.threads.Create(ctx, p.ID, title)
}

// Delete implements ChatService.
func (s *ChatServiceImpl) Delete(ctx context.Context, p model.Principal, id uuid.UUID) error {
	return s.threads.Delete(ctx, p.ID, id)
}

// Messages implements ChatService.
func (s *ChatServiceImpl) Messages(ctx context.Context, p model.Principal, id uuid.UUID) ([]model.Message, error) {
	if _, err := s.threads.Get(ctx, p.ID, id); err != nil {
		return nil, err
	}
	return s.messages.List(ctx, id)
}

// History implements ChatService.
func (s *ChatServiceImpl) History(ctx context.Context, p model.Principal, id uuid.UUID) ([]model.Turn, error) {
	msgs, err := s.Messages(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return Transcript(msgs), nil
}

// Transcript maps stored messages to provider turns, keeping their order.
// The assistant role becomes "model"; user stays "user". Blank messages are
// dropped since the provider rejects empty parts.
func Transcript(msgs []model.Message) []model.Turn {
	turns := make([]model.Turn, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := model.TurnUser
		if m.Role == model.RoleAssistant {
			role = model.TurnModel
		}
		turns = append(turns, model.Turn{Role: role, Text: m.Content})
	}
	return turns
}

// TitleFrom returns the first 50 characters of content.
func TitleFrom(content string) string {
	n := 0
	for i := range content {
		if n == titleRunes {
			return content[:i]
		}
		n++
	}
	return content
}
