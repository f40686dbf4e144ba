package answer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"rulewise/apps/backend/internal/engine"
)

// Engine is the subset of the RAG engine the HTTP surface needs.
type Engine interface {
	Ask(ctx context.Context, domainID, query string) engine.AnswerResult
	Explain(ctx context.Context, domainID, topic string) engine.ExplanationResult
	AskStream(ctx context.Context, domainID, query string) <-chan engine.Event
}

type Handler struct {
	engine Engine
}

func NewHandler(e Engine) *Handler {
	return &Handler{engine: e}
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DomainID string `json:"domain_id"`
		Query    string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.DomainID == "" {
		h.writeError(w, "VALIDATION_ERROR", "domain_id is required", http.StatusBadRequest)
		return
	}

	// Engine failures are well-formed results, not HTTP errors.
	result := h.engine.Ask(r.Context(), req.DomainID, req.Query)
	h.writeJSON(w, map[string]interface{}{"data": result})
}

func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DomainID string `json:"domain_id"`
		Topic    string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.DomainID == "" {
		h.writeError(w, "VALIDATION_ERROR", "domain_id is required", http.StatusBadRequest)
		return
	}

	result := h.engine.Explain(r.Context(), req.DomainID, req.Topic)
	h.writeJSON(w, map[string]interface{}{"data": result})
}

// AskStream delivers the answer progressively over SSE. Each event is one
// JSON-encoded engine.Event; client disconnect cancels the stream.
func (h *Handler) AskStream(w http.ResponseWriter, r *http.Request) {
	domainID := r.URL.Query().Get("domain_id")
	query := r.URL.Query().Get("query")
	if domainID == "" {
		h.writeError(w, "VALIDATION_ERROR", "domain_id is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, "INTERNAL_ERROR", "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.engine.AskStream(r.Context(), domainID, query)
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("failed to marshal stream event", "error", err)
			return
		}
		if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			// Client gone; r.Context cancellation stops the engine.
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
