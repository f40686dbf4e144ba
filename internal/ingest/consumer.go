package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"rulewise/apps/backend/internal/middleware"
)

// Consumer adapts the orchestrator to NSQ. One message is one pipeline run.
type Consumer struct {
	orchestrator *Orchestrator
}

func NewConsumer(o *Orchestrator) *Consumer {
	return &Consumer{orchestrator: o}
}

func (c *Consumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload TaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid ingest task", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if payload.DocumentID == "" || payload.DomainID == "" {
		slog.ErrorContext(ctx, "ingest task missing ids, dropping",
			"document_id", payload.DocumentID, "domain_id", payload.DomainID)
		return nil
	}

	err := c.orchestrator.Run(ctx, payload)
	if errors.Is(err, ErrRunActive) {
		// Duplicate start requests are rejected, not queued.
		slog.WarnContext(ctx, "duplicate ingest task rejected", "document_id", payload.DocumentID)
		return nil
	}

	// Failures are terminal for the run; the orchestrator has already
	// persisted the failed status. Returning nil keeps NSQ from retrying.
	if err != nil {
		slog.ErrorContext(ctx, "ingest run finished with error", "document_id", payload.DocumentID, "error", err)
	}
	return nil
}
