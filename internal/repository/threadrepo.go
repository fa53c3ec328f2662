package repository

import (
	"context"

	"github.com/and161185/typegpt/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ThreadRepository provides owner-scoped access to conversation threads.
type ThreadRepository interface {
	// Create inserts an empty thread.
	Create(ctx context.Context, userID, title string) (*model.Thread, error)
	// List returns the owner's threads, most recently updated first.
	List(ctx context.Context, userID string) ([]model.Thread, error)
	// Get returns a thread only if owned by userID, else errs.ErrNotFound.
	Get(ctx context.Context, userID string, id uuid.UUID) (*model.Thread, error)
	// Delete removes the thread and its messages atomically, else errs.ErrNotFound.
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	// SetTitle sets the title and bumps updated_at.
	SetTitle(ctx context.Context, id uuid.UUID, title string) error
	// Touch bumps updated_at.
	Touch(ctx context.Context, id uuid.UUID) error
}

// MessageRepository provides append-only access to thread messages.
type MessageRepository interface {
	// Append inserts a message and returns it with its id and timestamp.
	Append(ctx context.Context, threadID uuid.UUID, role model.Role, content string) (*model.Message, error)
	// Count returns the number of messages in a thread.
	Count(ctx context.Context, threadID uuid.UUID) (int64, error)
	// List returns all messages of a thread in creation order.
	List(ctx context.Context, threadID uuid.UUID) ([]model.Message, error)
	// ListBefore returns messages created before message beforeID, in creation order.
	ListBefore(ctx context.Context, threadID uuid.UUID, beforeID int64) ([]model.Message, error)
}
