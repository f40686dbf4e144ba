package engine

import (
	"context"
	"time"
)

// Hit is one retrieved rulebook chunk with its similarity score. Hits double
// as citations in answer payloads, ordered by score as the store returned them.
type Hit struct {
	Content    string  `json:"content"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
}

// AnswerResult is the outcome of Ask. Failure modes are expressed in the
// Answer text and Success flag, never as an error to the caller.
type AnswerResult struct {
	Answer     string  `json:"answer"`
	Citations  []Hit   `json:"citations"`
	TokensUsed int     `json:"tokens_used"`
	Confidence float32 `json:"confidence"`
	Success    bool    `json:"success"`
}

// ExplanationResult is the outcome of Explain.
type ExplanationResult struct {
	Outline              []string `json:"outline"`
	Script               string   `json:"script"`
	Citations            []Hit    `json:"citations"`
	EstimatedReadMinutes int      `json:"estimated_read_minutes"`
	Success              bool     `json:"success"`
}

// Completion is a whole LLM response.
type Completion struct {
	Text       string
	TokensUsed int
}

// StreamChunk is one fragment of a streamed LLM response. Err is set on the
// final chunk if the stream broke.
type StreamChunk struct {
	Text string
	Err  error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, domainID string, vector []float32, limit int) ([]Hit, error)
}

type LLM interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
	CompleteStream(ctx context.Context, system, user string) (<-chan StreamChunk, error)
}

// Cache is advisory: implementations swallow store failures and report a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}
