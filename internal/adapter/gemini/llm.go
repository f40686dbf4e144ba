package gemini

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"rulewise/apps/backend/internal/engine"
)

const defaultCompletionModel = "gemini-2.0-flash"

var ErrEmptyCompletion = errors.New("llm returned no candidates")

// LLM generates grounded completions via the Gemini generation API, in both
// whole-response and token-stream modes.
type LLM struct {
	client *genai.Client
	model  string
}

func NewLLM(ctx context.Context, apiKey string, opts ...option.ClientOption) (*LLM, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &LLM{client: client, model: defaultCompletionModel}, nil
}

// Complete runs one generation with the given system instruction and prompt.
func (l *LLM) Complete(ctx context.Context, system, user string) (engine.Completion, error) {
	model := l.generativeModel(system)

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		slog.ErrorContext(ctx, "llm completion failed", "model", l.model, "error", err)
		return engine.Completion{}, err
	}

	textOut := collectText(resp)
	if textOut == "" {
		return engine.Completion{}, ErrEmptyCompletion
	}

	completion := engine.Completion{Text: textOut}
	if resp.UsageMetadata != nil {
		completion.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return completion, nil
}

// CompleteStream runs one generation and yields ordered text fragments on the
// returned channel. The channel is closed when the stream ends; a broken
// stream delivers a final chunk with Err set.
func (l *LLM) CompleteStream(ctx context.Context, system, user string) (<-chan engine.StreamChunk, error) {
	model := l.generativeModel(system)
	iter := model.GenerateContentStream(ctx, genai.Text(user))

	out := make(chan engine.StreamChunk)
	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				slog.ErrorContext(ctx, "llm stream failed", "model", l.model, "error", err)
				select {
				case out <- engine.StreamChunk{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			fragment := collectText(resp)
			if fragment == "" {
				continue
			}
			select {
			case out <- engine.StreamChunk{Text: fragment}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (l *LLM) Close() error {
	return l.client.Close()
}

func (l *LLM) generativeModel(system string) *genai.GenerativeModel {
	// Fresh model per call: SystemInstruction is per-request state.
	model := l.client.GenerativeModel(l.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return model
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var out string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				out += string(t)
			}
		}
	}
	return out
}
