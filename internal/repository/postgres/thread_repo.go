package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

// ThreadRepo implements ThreadRepository using PostgreSQL.
type ThreadRepo struct{ db *DB }

// NewThreadRepo constructs a thread repository.
func NewThreadRepo(db *DB) *ThreadRepo { return &ThreadRepo{db: db} }

// Create inserts an empty thread owned by userID.
func (r *ThreadRepo) Create(ctx context.Context, userID, title string) (*model.Thread, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO threads (id, user_id, title)
VALUES ($1, $2, $3)
RETURNING created_at, updated_at`
	t := model.Thread{ID: id, UserID: userID, Title: title}
	if err := r.db.Pool.QueryRow(ctx, q, id, userID, title).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns threads of userID ordered by updated_at DESC.
func (r *ThreadRepo) List(ctx context.Context, userID string) ([]model.Thread, error) {
	const q = `
SELECT id, user_id, title, created_at, updated_at
FROM threads
WHERE user_id=$1
ORDER BY updated_at DESC, created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Thread{}
	for rows.Next() {
		var t model.Thread
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get returns a thread owned by userID.
func (r *ThreadRepo) Get(ctx context.Context, userID string, id uuid.UUID) (*model.Thread, error) {
	const q = `
SELECT id, user_id, title, created_at, updated_at
FROM threads WHERE id=$1 AND user_id=$2`
	var t model.Thread
	err := r.db.Pool.QueryRow(ctx, q, id, userID).Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Delete removes the thread's messages, then the thread, in one transaction.
func (r *ThreadRepo) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	const sel = `SELECT id FROM threads WHERE id=$1 AND user_id=$2 FOR UPDATE`
	const delMsgs = `DELETE FROM messages WHERE thread_id=$1`
	const delThread = `DELETE FROM threads WHERE id=$1 AND user_id=$2`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, sel, id, userID).Scan(&locked); err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx, delMsgs, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, delThread, id, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// SetTitle updates the title and bumps updated_at.
func (r *ThreadRepo) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	const q = `UPDATE threads SET title=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, title, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Touch bumps updated_at.
func (r *ThreadRepo) Touch(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE threads SET updated_at=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
