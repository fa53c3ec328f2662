package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

// defaultImageMIME is assumed when the provider omits the payload type.
const defaultImageMIME = "image/png"

// models is the part of *genai.Models used here.
type models interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements ChatProvider and ImageProvider on the Gemini API.
type Gemini struct {
	models     models
	chatModel  string
	imageModel string
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, apiKey, chatModel, imageModel string) (*Gemini, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Gemini{models: c.Models, chatModel: chatModel, imageModel: imageModel}, nil
}

// Stream implements ChatProvider. History roles are "user" or "model".
func (g *Gemini) Stream(ctx context.Context, history []model.Turn, message string) iter.Seq2[string, error] {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		role := genai.RoleUser
		if t.Role == model.TurnModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	return func(yield func(string, error) bool) {
		var got bool
		for resp, err := range g.models.GenerateContentStream(ctx, g.chatModel, contents, nil) {
			if err != nil {
				yield("", classify(err))
				return
			}
			if reason := blockReason(resp); reason != "" {
				yield("", fmt.Errorf("%w: response blocked: %s", errs.ErrProvider, reason))
				return
			}
			if text := responseText(resp); text != "" {
				got = true
				if !yield(text, nil) {
					return
				}
			}
		}
		if !got {
			yield("", fmt.Errorf("%w: empty completion", errs.ErrProvider))
		}
	}
}

// Generate implements ImageProvider. The first inline payload of the first
// candidate is returned; a response without one is ErrNoContent.
func (g *Gemini) Generate(ctx context.Context, prompt, _ string) (model.ImagePayload, error) {
	resp, err := g.models.GenerateContent(ctx, g.imageModel, genai.Text(prompt), nil)
	if err != nil {
		return model.ImagePayload{}, classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ImagePayload{}, errs.ErrNoContent
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = defaultImageMIME
		}
		return model.ImagePayload{MIMEType: mime, Data: part.InlineData.Data}, nil
	}
	return model.ImagePayload{}, errs.ErrNoContent
}

// blockedFinish lists finish reasons under which the provider withholds the answer.
var blockedFinish = map[genai.FinishReason]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

// blockReason returns why a response was blocked, or "".
func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if pf := resp.PromptFeedback; pf != nil {
		if r := string(pf.BlockReason); r != "" && r != "BLOCKED_REASON_UNSPECIFIED" {
			return r
		}
	}
	for _, c := range resp.Candidates {
		if c != nil && blockedFinish[c.FinishReason] {
			return string(c.FinishReason)
		}
	}
	return ""
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// classify maps a provider failure onto the error taxonomy.
// Quota and billing rejections are ErrBillingRequired, everything else ErrProvider.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsBilling(err) {
		return fmt.Errorf("%w: %v", errs.ErrBillingRequired, err)
	}
	return fmt.Errorf("%w: %v", errs.ErrProvider, err)
}

// IsBilling reports whether err is a quota or billing rejection.
// genai renders the status of API errors, so RESOURCE_EXHAUSTED is matched by text too.
func IsBilling(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "billing") ||
		strings.Contains(msg, "resource_exhausted")
}
