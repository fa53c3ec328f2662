package postgres

import (
	"context"
	"time"

	"github.com/and161185/typegpt/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a session row.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) error {
	const q = `
INSERT INTO sessions (token_hash, user_id, expires_at)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, s.TokenHash, s.UserID, s.ExpiresAt)
	return err
}

// Principal resolves a session that has not expired at now. Expired rows are ignored even if present.
func (r *SessionRepo) Principal(ctx context.Context, tokenHash []byte, now time.Time) (model.Principal, error) {
	const q = `
SELECT u.id, u.email
FROM sessions s JOIN users u ON u.id = s.user_id
WHERE s.token_hash=$1 AND s.expires_at > $2`
	var p model.Principal
	if err := r.db.Pool.QueryRow(ctx, q, tokenHash, now).Scan(&p.ID, &p.Email); err != nil {
		return model.Principal{}, notFound(err)
	}
	return p, nil
}

// Delete removes a session row. Absent rows are not an error.
func (r *SessionRepo) Delete(ctx context.Context, tokenHash []byte) error {
	const q = `DELETE FROM sessions WHERE token_hash=$1`
	_, err := r.db.Pool.Exec(ctx, q, tokenHash)
	return err
}
