package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/llm"
	"github.com/and161185/typegpt/internal/metrics"
	"github.com/and161185/typegpt/internal/model"
	"github.com/and161185/typegpt/internal/repository"
)

// DefaultAspectRatio is used when the request names none.
const DefaultAspectRatio = "1:1"

// AspectRatios are the accepted aspect-ratio hints.
var AspectRatios = []string{"1:1", "9:16", "16:9", "4:3", "3:4"}

// ImageService defines image generation and listing.
type ImageService interface {
	// Generate calls the provider once and stores the image as a data URI.
	Generate(ctx context.Context, p model.Principal, prompt, aspectRatio string) (*model.Image, error)
	// List returns the caller's images, newest first.
	List(ctx context.Context, p model.Principal) ([]model.Image, error)
}

type ImageServiceImpl struct {
	images   repository.ImageRepository
	provider llm.ImageProvider
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewImageService constructs ImageService.
func NewImageService(images repository.ImageRepository, provider llm.ImageProvider, m *metrics.Metrics, log *zap.Logger) *ImageServiceImpl {
	return &ImageServiceImpl{images: images, provider: provider, metrics: m, log: log}
}

// Generate implements ImageService. A response without an inline payload is
// errs.ErrNoContent and a quota rejection errs.ErrBillingRequired, so callers
// can tell both apart from a generic provider failure.
func (s *ImageServiceImpl) Generate(ctx context.Context, p model.Principal, prompt, aspectRatio string) (*model.Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", errs.ErrInvalidInput)
	}
	if aspectRatio == "" {
		aspectRatio = DefaultAspectRatio
	}
	if !slices.Contains(AspectRatios, aspectRatio) {
		return nil, fmt.Errorf("%w: unsupported aspect ratio %q", errs.ErrInvalidInput, aspectRatio)
	}

	payload, err := s.provider.Generate(ctx, prompt, aspectRatio)
	if err != nil {
		s.metrics.Image(imageOutcome(err))
		s.log.Warn("image generation failed", zap.String("user", p.ID), zap.Error(err))
		return nil, err
	}

	img := &model.Image{
		UserID:      p.ID,
		Prompt:      prompt,
		ImageURL:    DataURI(payload),
		AspectRatio: aspectRatio,
	}
	if err := s.images.Create(ctx, img); err != nil {
		s.metrics.Image("persist_error")
		return nil, fmt.Errorf("%w: save image: %v", errs.ErrPersistence, err)
	}
	s.metrics.Image("ok")
	return img, nil
}

// List implements ImageService.
func (s *ImageServiceImpl) List(ctx context.Context, p model.Principal) ([]model.Image, error) {
	return s.images.List(ctx, p.ID)
}

// DataURI embeds a payload as data:<mime>;base64,<data>.
func DataURI(p model.ImagePayload) string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

func imageOutcome(err error) string {
	switch {
	case errors.Is(err, errs.ErrNoContent):
		return "no_content"
	case errors.Is(err, errs.ErrBillingRequired):
		return "billing"
	default:
		return "provider_error"
	}
}
