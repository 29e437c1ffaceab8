package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"
	"semdex/internal/middleware"
	"semdex/internal/pipeline"
	"semdex/internal/store"
)

var errPartialIngest = errors.New("some chunks failed to index")

// Ingestor is the slice of the pipeline the consumers drive.
type Ingestor interface {
	Ingest(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Delete(ctx context.Context, namespace, documentID string) error
}

type IngestConsumer struct {
	pipeline Ingestor
	timeout  time.Duration
}

func NewIngestConsumer(p Ingestor, timeout time.Duration) *IngestConsumer {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &IngestConsumer{pipeline: p, timeout: timeout}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.pipeline.Ingest(ctx, pipeline.Request{
		Namespace:  payload.Namespace,
		DocumentID: payload.DocumentID,
		SourceType: payload.SourceType,
		Text:       payload.Text,
	})
	if err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "error", err, "document_id", payload.DocumentID, "namespace", payload.Namespace)
		return err // Retry
	}

	if res.Status == store.StatusPartial {
		// Redelivery re-runs the whole document; identical chunk ids make
		// the already-indexed portion an overwrite, not a duplicate.
		slog.WarnContext(ctx, "ingestion partially failed, requeueing",
			"document_id", res.DocumentID, "indexed", res.ChunksIndexed, "total", res.ChunksTotal)
		return errPartialIngest
	}

	slog.InfoContext(ctx, "document ingested", "document_id", res.DocumentID, "namespace", res.Namespace, "chunks", res.ChunksIndexed)
	return nil
}

type DeleteConsumer struct {
	pipeline Ingestor
}

func NewDeleteConsumer(p Ingestor) *DeleteConsumer {
	return &DeleteConsumer{pipeline: p}
}

func (h *DeleteConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload DeletePayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.Namespace == "" || payload.DocumentID == "" {
		slog.Error("poison pill: delete payload missing namespace or document id")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if err := h.pipeline.Delete(ctx, payload.Namespace, payload.DocumentID); err != nil {
		slog.ErrorContext(ctx, "delete failed", "error", err, "document_id", payload.DocumentID)
		return err // Retry
	}
	return nil
}
