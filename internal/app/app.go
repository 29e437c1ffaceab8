package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"semdex/features/ingest"
	"semdex/features/search"
	"semdex/internal/config"
	"semdex/internal/embed"
	"semdex/internal/extract"
	"semdex/internal/index"
	"semdex/internal/middleware"
	"semdex/internal/pipeline"
	"semdex/internal/retrieval"
	"semdex/internal/store"
	"semdex/internal/text"
	"semdex/internal/worker"
)

// TaskPublisher is satisfied by *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler        http.Handler
	Index          *index.Index
	Pipeline       *pipeline.Pipeline
	IngestConsumer *worker.IngestConsumer
	DeleteConsumer *worker.DeleteConsumer

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	model embed.Model,
	mirror index.Mirror,
	taskPub TaskPublisher,
) (*App, error) {
	chunker, err := text.NewChunker(cfg.MaxChunkTokens, cfg.ChunkOverlapTokens)
	if err != nil {
		return nil, fmt.Errorf("chunker config: %w", err)
	}

	embedSvc := embed.NewService(model, embed.Options{
		BatchSize:   cfg.EmbedBatchSize,
		Concurrency: cfg.EmbedConcurrency,
		SlotTimeout: time.Duration(cfg.EmbedSlotTimeoutSec) * time.Second,
	})

	var idx *index.Index
	if mirror != nil {
		idx = index.NewMirrored(mirror)
	} else {
		idx = index.New()
	}

	docsRepo := store.NewPostgresRepo(db)
	extractor := extract.NewHTTPExtractor(cfg.ExtractorURL, 2*time.Minute)

	pipe := pipeline.New(pipeline.Config{
		Chunker:    chunker,
		Embedder:   embedSvc,
		Index:      idx,
		Documents:  docsRepo,
		Extractor:  extractor,
		EmbedBatch: cfg.EmbedBatchSize,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		},
	})

	// Feature: Ingest
	ingestService := ingest.NewService(pipe, docsRepo, taskPub)
	ingestHandler := ingest.NewHandler(ingestService, cfg.MaxUploadSizeMB)

	// Feature: Search
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedSvc, idx, cfg.SearchDefaultTopK, queryLogger)
	searchHandler := search.NewHandler(retrievalService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(ingestHandler.Create)))
	mux.Handle("POST /documents/sync", middleware.CorrelationID(enableCORS(ingestHandler.CreateSync)))
	mux.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(ingestHandler.Upload)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(ingestHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(ingestHandler.Delete)))

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		status := "ok"
		if idx.Degraded() {
			status = "degraded"
		}
		fmt.Fprintf(w, `{"status":%q}`, status)
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if idx.Degraded() {
			status = "degraded"
		}
		namespaces := idx.Stats()
		total := 0
		for _, n := range namespaces {
			total += n
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":     status,
			"namespaces": namespaces,
			"records":    total,
		})
	})

	ingestTimeout := time.Duration(cfg.IngestTimeoutSec) * time.Second

	return &App{
		Handler:        mux,
		Index:          idx,
		Pipeline:       pipe,
		IngestConsumer: worker.NewIngestConsumer(pipe, ingestTimeout),
		DeleteConsumer: worker.NewDeleteConsumer(pipe),
		port:           cfg.ServerPort,
	}, nil
}

// Rebuild restores the in-memory index from the durable mirror. No-op without
// a mirror; called before the server takes traffic.
func (a *App) Rebuild(ctx context.Context) error {
	return a.Index.Rebuild(ctx)
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
