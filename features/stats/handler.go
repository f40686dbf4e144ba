package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"rulewise/apps/backend/internal/middleware"
)

type DocumentRepo interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type VectorStore interface {
	CountChunks(ctx context.Context, domainID string) (int, error)
}

type Handler struct {
	docRepo     DocumentRepo
	vectorStore VectorStore
}

func NewHandler(d DocumentRepo, v VectorStore) *Handler {
	return &Handler{docRepo: d, vectorStore: v}
}

type StatsResponse struct {
	DocumentsByStatus map[string]int `json:"documents_by_status"`
	IndexedChunks     *int           `json:"indexed_chunks,omitempty"`
}

// GetStats reports document counts by pipeline status, plus the indexed chunk
// count when a domain_id is given.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	counts, err := h.docRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{DocumentsByStatus: counts}

	if domainID := r.URL.Query().Get("domain_id"); domainID != "" {
		chunks, err := h.vectorStore.CountChunks(ctx, domainID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count chunks", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
			return
		}
		resp.IndexedChunks = &chunks
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
