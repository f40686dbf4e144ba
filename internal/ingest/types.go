package ingest

import (
	"context"

	"rulewise/apps/backend/internal/text"
)

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	IndexChunks(ctx context.Context, domainID, docID string, chunks []text.Chunk, vectors [][]float32) (int, error)
}

// DocumentUpdater persists pipeline state transitions. Implemented by the
// document feature's Postgres repository.
type DocumentUpdater interface {
	StartRun(ctx context.Context, id string) error
	SetExtracted(ctx context.Context, id string, pages, chars int) error
	UpdateProgress(ctx context.Context, id, status string, percent int) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
}

// CacheInvalidator purges cached answers for a domain once its knowledge
// base has changed.
type CacheInvalidator interface {
	InvalidateDomain(ctx context.Context, domainID string) error
}
