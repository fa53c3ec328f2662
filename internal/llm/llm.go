// Package llm defines the generation providers the service talks to
// and a Gemini implementation of them.
package llm

import (
	"context"
	"iter"

	"github.com/and161185/typegpt/internal/model"
)

// ChatProvider streams a multi-turn completion.
// The sequence yields text fragments in order and ends after the first error.
type ChatProvider interface {
	Stream(ctx context.Context, history []model.Turn, message string) iter.Seq2[string, error]
}

// ImageProvider performs one synchronous text-to-image call.
type ImageProvider interface {
	Generate(ctx context.Context, prompt, aspectRatio string) (model.ImagePayload, error)
}
