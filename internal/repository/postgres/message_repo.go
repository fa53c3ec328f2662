package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

// MessageRepo implements MessageRepository using PostgreSQL.
// Messages are ordered by (created_at, id); id is a bigserial, so ties keep insertion order.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

// Append inserts a message. A missing thread is errs.ErrNotFound.
func (r *MessageRepo) Append(ctx context.Context, threadID uuid.UUID, role model.Role, content string) (*model.Message, error) {
	const q = `
INSERT INTO messages (thread_id, role, content)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	m := model.Message{ThreadID: threadID, Role: role, Content: content}
	if err := r.db.Pool.QueryRow(ctx, q, threadID, string(role), content).Scan(&m.ID, &m.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Count returns the number of messages in a thread.
func (r *MessageRepo) Count(ctx context.Context, threadID uuid.UUID) (int64, error) {
	const q = `SELECT COUNT(*) FROM messages WHERE thread_id=$1`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, threadID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// List returns all messages of a thread in creation order.
func (r *MessageRepo) List(ctx context.Context, threadID uuid.UUID) ([]model.Message, error) {
	const q = `
SELECT id, thread_id, role, content, created_at
FROM messages
WHERE thread_id=$1
ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q, threadID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListBefore returns messages older than beforeID in creation order.
func (r *MessageRepo) ListBefore(ctx context.Context, threadID uuid.UUID, beforeID int64) ([]model.Message, error) {
	const q = `
SELECT id, thread_id, role, content, created_at
FROM messages
WHERE thread_id=$1 AND id<$2
ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q, threadID, beforeID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]model.Message, error) {
	defer rows.Close()
	out := []model.Message{}
	for rows.Next() {
		var (
			m    model.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}
