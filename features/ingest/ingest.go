package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"semdex/internal/config"
	"semdex/internal/middleware"
	"semdex/internal/pipeline"
	"semdex/internal/store"
	"semdex/internal/worker"
)

// Request mirrors the async payload; Sync and Enqueue accept the same shape.
type Request struct {
	Namespace  string `json:"namespace"`
	DocumentID string `json:"document_id,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	Text       string `json:"text"`
}

// Receipt is what an async enqueue hands back: enough to poll the document.
type Receipt struct {
	DocumentID string `json:"document_id"`
	Namespace  string `json:"namespace"`
	Status     string `json:"status"`
}

type Ingestor interface {
	Ingest(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	IngestFile(ctx context.Context, req pipeline.FileRequest) (*pipeline.Result, error)
	Delete(ctx context.Context, namespace, documentID string) error
}

type DocumentReader interface {
	Get(ctx context.Context, id string) (*store.Document, error)
	ChunkFailures(ctx context.Context, docID string) ([]store.ChunkFailure, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	pipe Ingestor
	docs DocumentReader
	pub  EventPublisher
}

func NewService(pipe Ingestor, docs DocumentReader, pub EventPublisher) *Service {
	return &Service{pipe: pipe, docs: docs, pub: pub}
}

// Enqueue publishes the request for the worker pool and returns immediately.
// The document id is resolved up front so the caller can poll status.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Receipt, error) {
	if req.Namespace == "" {
		return nil, fmt.Errorf("%w: namespace required", pipeline.ErrRequest)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("%w: text required", pipeline.ErrRequest)
	}
	if s.pub == nil {
		return nil, fmt.Errorf("%w: async ingestion disabled", pipeline.ErrRequest)
	}

	docID := req.DocumentID
	if docID == "" {
		docID = pipeline.DeriveDocumentID(req.Text)
	}

	payload, err := json.Marshal(worker.IngestPayload{
		Namespace:     req.Namespace,
		DocumentID:    docID,
		SourceType:    req.SourceType,
		Text:          req.Text,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(config.TopicIngestDocument, payload); err != nil {
		return nil, fmt.Errorf("publish ingest job: %w", err)
	}

	slog.InfoContext(ctx, "ingest job published", "document_id", docID, "namespace", req.Namespace)
	return &Receipt{DocumentID: docID, Namespace: req.Namespace, Status: "queued"}, nil
}

// Sync runs the pipeline inline and reports the full per-chunk outcome.
func (s *Service) Sync(ctx context.Context, req Request) (*pipeline.Result, error) {
	return s.pipe.Ingest(ctx, pipeline.Request{
		Namespace:  req.Namespace,
		DocumentID: req.DocumentID,
		SourceType: req.SourceType,
		Text:       req.Text,
	})
}

// Upload extracts and ingests raw file bytes inline. Files stay on the HTTP
// path; the broker only ever carries extracted text.
func (s *Service) Upload(ctx context.Context, req pipeline.FileRequest) (*pipeline.Result, error) {
	return s.pipe.IngestFile(ctx, req)
}

// Status reports the registry row plus any recorded chunk failures.
func (s *Service) Status(ctx context.Context, id string) (*store.Document, []store.ChunkFailure, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	failures, err := s.docs.ChunkFailures(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, failures, nil
}

// Delete removes the document and all its chunks. Async publishes the job;
// otherwise the cascade runs inline.
func (s *Service) Delete(ctx context.Context, namespace, documentID string, async bool) error {
	if async && s.pub != nil {
		payload, err := json.Marshal(worker.DeletePayload{
			Namespace:     namespace,
			DocumentID:    documentID,
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
		if err != nil {
			return err
		}
		return s.pub.Publish(config.TopicDeleteDocument, payload)
	}
	return s.pipe.Delete(ctx, namespace, documentID)
}
