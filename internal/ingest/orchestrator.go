package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"rulewise/apps/backend/internal/text"
)

// Progress weight reached on entering each step. Completion is 100.
const (
	percentExtracting = 20
	percentChunking   = 40
	percentEmbedding  = 60
	percentIndexing   = 80
	percentCompleted  = 100
)

// CancelledMessage is the distinguished error text persisted when a run is
// cancelled rather than failing on its own.
const CancelledMessage = "ingestion cancelled"

// ErrRunActive is returned when a run is requested for a document that
// already has one in flight.
var ErrRunActive = errors.New("ingestion already running for document")

// Orchestrator drives extract -> chunk -> embed -> index for one document as
// a cancellable unit of background work. It never retries and never rolls
// back work done before a failure or cancellation.
type Orchestrator struct {
	embedder Embedder
	store    VectorStore
	docs     DocumentUpdater
	cache    CacheInvalidator
	registry *Registry

	chunkSize int
	overlap   int
}

// NewOrchestrator builds the pipeline runner. chunkSize and overlap are the
// defaults applied when a task does not carry its own; non-positive values
// fall back to the package defaults.
func NewOrchestrator(e Embedder, s VectorStore, d DocumentUpdater, c CacheInvalidator, r *Registry, chunkSize, overlap int) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = text.DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = text.DefaultOverlap
	}
	return &Orchestrator{
		embedder:  e,
		store:     s,
		docs:      d,
		cache:     c,
		registry:  r,
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// Cancel aborts the active run for docID, if any. The run itself persists
// the failed status as it unwinds.
func (o *Orchestrator) Cancel(docID string) bool {
	return o.registry.Cancel(docID)
}

// Active reports whether docID has a run in flight.
func (o *Orchestrator) Active(docID string) bool {
	return o.registry.Active(docID)
}

// Run executes the full pipeline for one task. Any step failure, including
// cancellation, transitions the document to failed with the underlying
// message; chunks already indexed before the failure stay in the vector
// store.
func (o *Orchestrator) Run(ctx context.Context, task TaskPayload) error {
	runCtx, ok := o.registry.Begin(ctx, task.DocumentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunActive, task.DocumentID)
	}
	defer o.registry.Finish(task.DocumentID)

	size := task.ChunkSize
	if size <= 0 {
		size = o.chunkSize
	}
	overlap := task.Overlap
	if overlap <= 0 {
		overlap = o.overlap
	}
	if overlap >= size {
		return o.fail(ctx, task, fmt.Errorf("overlap %d must be smaller than chunk size %d", overlap, size))
	}

	// Step 1: extraction. Upstream extraction already happened; here we
	// validate the text and record its dimensions.
	if err := o.docs.StartRun(runCtx, task.DocumentID); err != nil {
		return o.fail(ctx, task, fmt.Errorf("start run: %w", err))
	}
	if err := o.docs.UpdateProgress(runCtx, task.DocumentID, "extracting", percentExtracting); err != nil {
		return o.fail(ctx, task, err)
	}
	if strings.TrimSpace(task.Text) == "" {
		return o.fail(ctx, task, errors.New("document text is empty"))
	}
	pages := text.EstimatePages(task.Text)
	if err := o.docs.SetExtracted(runCtx, task.DocumentID, pages, len(task.Text)); err != nil {
		return o.fail(ctx, task, fmt.Errorf("record extraction: %w", err))
	}
	if err := runCtx.Err(); err != nil {
		return o.fail(ctx, task, err)
	}

	// Step 2: chunking.
	if err := o.docs.UpdateProgress(runCtx, task.DocumentID, "chunking", percentChunking); err != nil {
		return o.fail(ctx, task, err)
	}
	chunks := text.Split(task.Text, size, overlap)
	if len(chunks) == 0 {
		return o.fail(ctx, task, errors.New("no chunks produced from document text"))
	}
	if err := runCtx.Err(); err != nil {
		return o.fail(ctx, task, err)
	}

	// Step 3: embedding, one batched call, all-or-nothing.
	if err := o.docs.UpdateProgress(runCtx, task.DocumentID, "embedding", percentEmbedding); err != nil {
		return o.fail(ctx, task, err)
	}
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	vectors, err := o.embedder.EmbedBatch(runCtx, contents)
	if err != nil {
		return o.fail(ctx, task, fmt.Errorf("embedding: %w", err))
	}
	if len(vectors) != len(chunks) {
		return o.fail(ctx, task, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	if err := runCtx.Err(); err != nil {
		return o.fail(ctx, task, err)
	}

	// Step 4: indexing.
	if err := o.docs.UpdateProgress(runCtx, task.DocumentID, "indexing", percentIndexing); err != nil {
		return o.fail(ctx, task, err)
	}
	indexed, err := o.store.IndexChunks(runCtx, task.DomainID, task.DocumentID, chunks, vectors)
	if err != nil {
		return o.fail(ctx, task, fmt.Errorf("indexing: %w", err))
	}
	if err := runCtx.Err(); err != nil {
		return o.fail(ctx, task, err)
	}

	if err := o.docs.MarkCompleted(runCtx, task.DocumentID); err != nil {
		return o.fail(ctx, task, err)
	}

	slog.InfoContext(ctx, "ingestion completed",
		"document_id", task.DocumentID, "domain_id", task.DomainID,
		"chunks", len(chunks), "indexed", indexed, "pages", pages)

	// The knowledge base changed: purge cached answers for the domain. This
	// is a separate call from the status update; a brief staleness window
	// between the two is accepted.
	if err := o.cache.InvalidateDomain(ctx, task.DomainID); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed", "domain_id", task.DomainID, "error", err)
	}

	return nil
}

// fail records the terminal failed state. Cancellation is persisted with a
// distinguished message so callers can tell it apart from real failures.
// The parent ctx is used for persistence because the run context may already
// be dead.
func (o *Orchestrator) fail(ctx context.Context, task TaskPayload, cause error) error {
	msg := cause.Error()
	if errors.Is(cause, context.Canceled) {
		msg = CancelledMessage
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := o.docs.MarkFailed(persistCtx, task.DocumentID, msg); err != nil {
		slog.ErrorContext(ctx, "failed to persist failure", "document_id", task.DocumentID, "error", err)
	}

	slog.ErrorContext(ctx, "ingestion failed",
		"document_id", task.DocumentID, "domain_id", task.DomainID, "reason", msg)
	return cause
}
