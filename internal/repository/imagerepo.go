package repository

import (
	"context"

	"github.com/and161185/typegpt/internal/model"
)

// ImageRepository stores generated images.
type ImageRepository interface {
	// Create inserts an image record and fills ID and CreatedAt.
	Create(ctx context.Context, img *model.Image) error
	// List returns the owner's images, newest first.
	List(ctx context.Context, userID string) ([]model.Image, error)
}
