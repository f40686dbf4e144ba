package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rulewise/apps/backend/internal/ingest"
	"rulewise/apps/backend/internal/middleware"
)

var (
	ErrValidation = errors.New("validation error")
	ErrActiveRun  = errors.New("document has an active ingestion run")
)

type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	ListByDomain(ctx context.Context, domainID string) ([]Document, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// PipelineController exposes cancel-by-key and active-run queries on the
// in-process ingestion registry.
type PipelineController interface {
	Cancel(docID string) bool
	Active(docID string) bool
}

// VectorCleaner removes a document's points when the document itself is
// deleted. Deletion is a collaborator action, not part of the pipeline.
type VectorCleaner interface {
	DeleteDocument(ctx context.Context, docID string) error
}

type Service struct {
	repo     Repository
	pub      EventPublisher
	pipeline PipelineController
	vectors  VectorCleaner
}

func NewService(repo Repository, pub EventPublisher, pipeline PipelineController, vectors VectorCleaner) *Service {
	return &Service{repo: repo, pub: pub, pipeline: pipeline, vectors: vectors}
}

// Submit persists a pending document and schedules its ingestion run, then
// returns immediately; the pipeline executes as background work.
func (s *Service) Submit(ctx context.Context, domainID, storageRef, extractedText string) (*Document, error) {
	if domainID == "" {
		return nil, fmt.Errorf("%w: domain_id is required", ErrValidation)
	}
	if strings.TrimSpace(extractedText) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}

	doc := &Document{
		DomainID:   domainID,
		StorageRef: storageRef,
		Status:     StatusPending,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}

	payload := ingest.TaskPayload{
		DocumentID:    doc.ID,
		DomainID:      domainID,
		Text:          extractedText,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(ingest.TaskTopic, body); err != nil {
		slog.ErrorContext(ctx, "failed to schedule ingestion", "document_id", doc.ID, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "ingestion scheduled", "document_id", doc.ID, "domain_id", domainID, "chars", len(extractedText))
	return doc, nil
}

// Progress returns the recomputed processing view for one document.
func (s *Service) Progress(ctx context.Context, id string) (*ProcessingProgress, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p := doc.ProgressSnapshot(time.Now())
	return &p, nil
}

// Cancel aborts the document's active run. Returns false when no run is
// active; cancellation of a finished run is not an error.
func (s *Service) Cancel(ctx context.Context, id string) bool {
	cancelled := s.pipeline.Cancel(id)
	if cancelled {
		slog.InfoContext(ctx, "ingestion cancel requested", "document_id", id)
	}
	return cancelled
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByDomain(ctx context.Context, domainID string) ([]Document, error) {
	if domainID == "" {
		return nil, fmt.Errorf("%w: domain_id is required", ErrValidation)
	}
	return s.repo.ListByDomain(ctx, domainID)
}

// Delete removes the document record and its indexed vectors. A document
// with an active run cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.pipeline.Active(id) {
		return ErrActiveRun
	}
	if err := s.vectors.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("vector cleanup: %w", err)
	}
	return s.repo.Delete(ctx, id)
}
