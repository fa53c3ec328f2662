package postgres

import (
	"context"

	"github.com/and161185/typegpt/internal/model"
)

// ImageRepo implements ImageRepository using PostgreSQL.
type ImageRepo struct{ db *DB }

// NewImageRepo constructs an image repository.
func NewImageRepo(db *DB) *ImageRepo { return &ImageRepo{db: db} }

// Create inserts an image record.
func (r *ImageRepo) Create(ctx context.Context, img *model.Image) error {
	const q = `
INSERT INTO generated_images (user_id, prompt, image_url, aspect_ratio)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	return r.db.Pool.QueryRow(ctx, q, img.UserID, img.Prompt, img.ImageURL, img.AspectRatio).
		Scan(&img.ID, &img.CreatedAt)
}

// List returns images of userID, newest first.
func (r *ImageRepo) List(ctx context.Context, userID string) ([]model.Image, error) {
	const q = `
SELECT id, user_id, prompt, image_url, aspect_ratio, created_at
FROM generated_images
WHERE user_id=$1
ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Image{}
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.UserID, &img.Prompt, &img.ImageURL, &img.AspectRatio, &img.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}
