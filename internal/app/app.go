package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rulewise/apps/backend/features/answer"
	"rulewise/apps/backend/features/document"
	"rulewise/apps/backend/features/stats"
	gemini "rulewise/apps/backend/internal/adapter/gemini"
	wstore "rulewise/apps/backend/internal/adapter/weaviate"
	"rulewise/apps/backend/internal/cache"
	"rulewise/apps/backend/internal/config"
	"rulewise/apps/backend/internal/engine"
	"rulewise/apps/backend/internal/ingest"
	"rulewise/apps/backend/internal/middleware"
	"rulewise/apps/backend/internal/ratelimit"
)

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	IngestConsumer  *ingest.Consumer

	port int
}

func New(ctx context.Context, cfg *config.Config, deps *Dependencies) (*App, error) {
	vecStore := wstore.NewStore(deps.Weaviate)
	responseCache := cache.NewResponseCache(deps.Redis)
	limiter := ratelimit.NewLimiter(deps.Redis)

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder error: %w", err)
	}
	llm, err := gemini.NewLLM(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("gemini llm error: %w", err)
	}

	// Ingestion pipeline
	docRepo := document.NewPostgresRepo(deps.DB)
	registry := ingest.NewRegistry()
	orchestrator := ingest.NewOrchestrator(embedder, vecStore, docRepo, responseCache, registry,
		cfg.ChunkSize, cfg.ChunkOverlap)
	ingestConsumer := ingest.NewConsumer(orchestrator)

	// Feature: Document
	docService := document.NewService(docRepo, deps.NSQProducer, orchestrator, vecStore)
	docHandler := document.NewHandler(docService)

	// Feature: Answer (RAG engine)
	ragEngine := engine.NewService(embedder, vecStore, llm, responseCache,
		time.Duration(cfg.CacheTTLSeconds)*time.Second)
	answerHandler := answer.NewHandler(ragEngine)

	// Feature: Stats
	statsHandler := stats.NewHandler(docRepo, vecStore)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Client-Tier")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Every inbound route passes the shared token-bucket limiter.
	wrap := func(next http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.RateLimit(limiter, enableCORS(next)))
	}

	// Uploads carry whole extracted rulebooks; cap the body so one oversized
	// submission can't exhaust memory.
	limitBody := func(maxMB int64, next http.HandlerFunc) http.HandlerFunc {
		if maxMB <= 0 {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxMB<<20)
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.Handle("POST /documents", wrap(limitBody(cfg.MaxUploadSizeMB, docHandler.Submit)))
	mux.Handle("GET /documents", wrap(docHandler.List))
	mux.Handle("GET /documents/progress", wrap(docHandler.Progress))
	mux.Handle("POST /documents/cancel", wrap(docHandler.Cancel))
	mux.Handle("DELETE /documents", wrap(docHandler.Delete))

	mux.Handle("POST /ask", wrap(answerHandler.Ask))
	mux.Handle("POST /explain", wrap(answerHandler.Explain))
	mux.Handle("GET /ask/stream", wrap(answerHandler.AskStream))

	mux.Handle("GET /stats", wrap(statsHandler.GetStats))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:         mux,
		DocumentService: docService,
		IngestConsumer:  ingestConsumer,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
