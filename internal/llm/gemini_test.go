package llm

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

type fakeModels struct {
	chunks   []*genai.GenerateContentResponse
	failAt   int // index at which the stream fails; -1 never
	streamEr error
	resp     *genai.GenerateContentResponse
	err      error

	gotModel    string
	gotContents []*genai.Content
	consumed    int
}

func (f *fakeModels) GenerateContentStream(_ context.Context, m string, contents []*genai.Content, _ *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.gotModel, f.gotContents = m, contents
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for i, c := range f.chunks {
			if i == f.failAt {
				yield(nil, f.streamEr)
				return
			}
			f.consumed++
			if !yield(c, nil) {
				return
			}
		}
		if f.failAt == len(f.chunks) {
			yield(nil, f.streamEr)
		}
	}
}

func (f *fakeModels) GenerateContent(_ context.Context, m string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel, f.gotContents = m, contents
	return f.resp, f.err
}

func textChunk(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}}}
}

func collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for s, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

func TestGemini_Stream_BuildsTranscriptAndRelaysFragments(t *testing.T) {
	f := &fakeModels{
		failAt: -1,
		chunks: []*genai.GenerateContentResponse{
			textChunk(&genai.Part{Text: "Hel"}),
			textChunk(&genai.Part{Text: "thinking", Thought: true}),
			textChunk(&genai.Part{Text: "lo"}),
		},
	}
	g := &Gemini{models: f, chatModel: "chat-m"}

	history := []model.Turn{{Role: model.TurnUser, Text: "q1"}, {Role: model.TurnModel, Text: "a1"}}
	out, err := collect(g.Stream(context.Background(), history, "q2"))
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, out)

	require.Equal(t, "chat-m", f.gotModel)
	require.Len(t, f.gotContents, 3)
	require.Equal(t, "user", string(f.gotContents[0].Role))
	require.Equal(t, "model", string(f.gotContents[1].Role))
	require.Equal(t, "user", string(f.gotContents[2].Role))
	require.Equal(t, "q2", f.gotContents[2].Parts[0].Text)
}

func TestGemini_Stream_ErrorAfterFragments(t *testing.T) {
	f := &fakeModels{
		failAt:   1,
		streamEr: errors.New("connection reset"),
		chunks:   []*genai.GenerateContentResponse{textChunk(&genai.Part{Text: "a"}), textChunk(&genai.Part{Text: "b"})},
	}
	g := &Gemini{models: f}

	out, err := collect(g.Stream(context.Background(), nil, "x"))
	require.Equal(t, []string{"a"}, out)
	require.ErrorIs(t, err, errs.ErrProvider)
}

func TestGemini_Stream_QuotaIsBilling(t *testing.T) {
	f := &fakeModels{failAt: 0, streamEr: errors.New("Error 429, Message: Quota exceeded, Status: RESOURCE_EXHAUSTED")}
	g := &Gemini{models: f}

	_, err := collect(g.Stream(context.Background(), nil, "x"))
	require.ErrorIs(t, err, errs.ErrBillingRequired)
}

func TestGemini_Stream_ConsumerStopsEarly(t *testing.T) {
	f := &fakeModels{
		failAt: -1,
		chunks: []*genai.GenerateContentResponse{textChunk(&genai.Part{Text: "a"}), textChunk(&genai.Part{Text: "b"}), textChunk(&genai.Part{Text: "c"})},
	}
	g := &Gemini{models: f}
	for range g.Stream(context.Background(), nil, "x") {
		break
	}
	require.Equal(t, 1, f.consumed)
}

func TestGemini_Generate_FirstInlinePayload(t *testing.T) {
	f := &fakeModels{resp: textChunk(
		&genai.Part{Text: "here you go"},
		&genai.Part{InlineData: &genai.Blob{Data: []byte{1, 2, 3}, MIMEType: "image/jpeg"}},
		&genai.Part{InlineData: &genai.Blob{Data: []byte{9}, MIMEType: "image/png"}},
	)}
	g := &Gemini{models: f, imageModel: "img-m"}

	p, err := g.Generate(context.Background(), "a cat", "1:1")
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", p.MIMEType)
	require.Equal(t, []byte{1, 2, 3}, p.Data)
	require.Equal(t, "img-m", f.gotModel)
}

func TestGemini_Generate_DefaultMIME(t *testing.T) {
	f := &fakeModels{resp: textChunk(&genai.Part{InlineData: &genai.Blob{Data: []byte{1}}})}
	p, err := (&Gemini{models: f}).Generate(context.Background(), "a cat", "1:1")
	require.NoError(t, err)
	require.Equal(t, "image/png", p.MIMEType)
}

func TestGemini_Generate_NoContent(t *testing.T) {
	for name, resp := range map[string]*genai.GenerateContentResponse{
		"nil":        nil,
		"no cands":   {},
		"text only":  textChunk(&genai.Part{Text: "I cannot draw"}),
		"empty blob": textChunk(&genai.Part{InlineData: &genai.Blob{}}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := (&Gemini{models: &fakeModels{resp: resp}}).Generate(context.Background(), "p", "1:1")
			require.ErrorIs(t, err, errs.ErrNoContent)
		})
	}
}

func TestGemini_Generate_Errors(t *testing.T) {
	_, err := (&Gemini{models: &fakeModels{err: errors.New("billing account not enabled")}}).Generate(context.Background(), "p", "1:1")
	require.ErrorIs(t, err, errs.ErrBillingRequired)

	_, err = (&Gemini{models: &fakeModels{err: errors.New("503 unavailable")}}).Generate(context.Background(), "p", "1:1")
	require.ErrorIs(t, err, errs.ErrProvider)
}

func TestClassify_PassesCancellation(t *testing.T) {
	require.ErrorIs(t, classify(context.Canceled), context.Canceled)
	require.NotErrorIs(t, classify(context.Canceled), errs.ErrProvider)
}

func TestGemini_Stream_SafetyFinishIsProviderError(t *testing.T) {
	blocked := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReason("SAFETY"),
	}}}
	f := &fakeModels{failAt: -1, chunks: []*genai.GenerateContentResponse{blocked}}

	out, err := collect((&Gemini{models: f}).Stream(context.Background(), nil, "x"))
	require.Empty(t, out)
	require.ErrorIs(t, err, errs.ErrProvider)
	require.Contains(t, err.Error(), "SAFETY")
}

func TestGemini_Stream_BlockedAfterTextIsProviderError(t *testing.T) {
	blocked := textChunk(&genai.Part{Text: "partial"})
	blocked.Candidates[0].FinishReason = genai.FinishReason("RECITATION")
	f := &fakeModels{failAt: -1, chunks: []*genai.GenerateContentResponse{textChunk(&genai.Part{Text: "a"}), blocked}}

	out, err := collect((&Gemini{models: f}).Stream(context.Background(), nil, "x"))
	require.Equal(t, []string{"a"}, out)
	require.ErrorIs(t, err, errs.ErrProvider)
}

func TestGemini_Stream_PromptBlockIsProviderError(t *testing.T) {
	blocked := &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
		BlockReason: genai.BlockedReason("PROHIBITED_CONTENT"),
	}}
	f := &fakeModels{failAt: -1, chunks: []*genai.GenerateContentResponse{blocked}}

	_, err := collect((&Gemini{models: f}).Stream(context.Background(), nil, "x"))
	require.ErrorIs(t, err, errs.ErrProvider)
}

func TestGemini_Stream_NoTextIsProviderError(t *testing.T) {
	stop := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReason("STOP")}}}
	f := &fakeModels{failAt: -1, chunks: []*genai.GenerateContentResponse{stop}}

	out, err := collect((&Gemini{models: f}).Stream(context.Background(), nil, "x"))
	require.Empty(t, out)
	require.ErrorIs(t, err, errs.ErrProvider)
}

func TestGemini_Stream_NormalStopIsNotBlocked(t *testing.T) {
	done := textChunk(&genai.Part{Text: "fine"})
	done.Candidates[0].FinishReason = genai.FinishReason("STOP")
	f := &fakeModels{failAt: -1, chunks: []*genai.GenerateContentResponse{done}}

	out, err := collect((&Gemini{models: f}).Stream(context.Background(), nil, "x"))
	require.NoError(t, err)
	require.Equal(t, []string{"fine"}, out)
}
