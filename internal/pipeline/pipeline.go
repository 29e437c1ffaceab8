package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"semdex/internal/embed"
	"semdex/internal/extract"
	"semdex/internal/index"
	"semdex/internal/store"
	"semdex/internal/text"
)

var ErrRequest = errors.New("invalid ingest request")

const defaultEmbedBatch = 16

type Embedder interface {
	Embed(ctx context.Context, texts []string, mode embed.Mode) ([]embed.Result, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, namespace, id string, vector []float32, meta index.Metadata) error
	Delete(ctx context.Context, namespace, id string) error
	DeleteDocument(ctx context.Context, namespace, documentID string) ([]string, error)
}

type DocumentStore interface {
	Save(ctx context.Context, doc *store.Document) error
	Get(ctx context.Context, id string) (*store.Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateChunkCount(ctx context.Context, id string, count int) error
	Delete(ctx context.Context, id string) error
	RecordChunkFailure(ctx context.Context, docID string, chunkIndex int, reason string) error
	ClearChunkFailures(ctx context.Context, docID string) error
}

// Request ingests already-extracted text.
type Request struct {
	Namespace  string
	DocumentID string // empty: derived from the content hash
	SourceType string
	Text       string
}

// FileRequest ingests raw file bytes through the external extractor first.
type FileRequest struct {
	Namespace  string
	DocumentID string
	SourceType string
	FileName   string
	MimeType   string
	Data       []byte
}

// ChunkFailure names one chunk that could not be embedded after retries, so
// the caller can retry exactly those.
type ChunkFailure struct {
	Index int
	Err   error
}

type Result struct {
	DocumentID    string
	Namespace     string
	Status        string
	ChunksTotal   int
	ChunksIndexed int
	Failures      []ChunkFailure
}

// Pipeline drives extractor output through the chunker and embedder into the
// vector index, one document per call. It is stateless between calls; all
// document state lives in the registry and the index.
type Pipeline struct {
	chunker    *text.Chunker
	embedder   Embedder
	idx        VectorIndex
	docs       DocumentStore
	extractor  extract.Extractor
	retry      RetryPolicy
	embedBatch int
}

type Config struct {
	Chunker    *text.Chunker
	Embedder   Embedder
	Index      VectorIndex
	Documents  DocumentStore
	Extractor  extract.Extractor // optional, only needed for IngestFile
	Retry      RetryPolicy
	EmbedBatch int
}

func New(cfg Config) *Pipeline {
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = defaultEmbedBatch
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
	}
	return &Pipeline{
		chunker:    cfg.Chunker,
		embedder:   cfg.Embedder,
		idx:        cfg.Index,
		docs:       cfg.Documents,
		extractor:  cfg.Extractor,
		retry:      cfg.Retry,
		embedBatch: cfg.EmbedBatch,
	}
}

// ChunkID derives the stable id for a document's nth chunk. Identical
// ingestion runs therefore write identical ids, which is what makes
// re-ingestion an overwrite instead of a duplicate.
func ChunkID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(documentID+"#"+strconv.Itoa(chunkIndex))).String()
}

// Ingest runs the full chunk -> embed -> upsert pass for one document.
//
// Chunks that fail embedding after retries are reported individually and do
// not roll back chunks that succeeded. Cancellation is honored between
// embedding batches, never mid-chunk; whatever was indexed stays indexed and
// the document is left in a well-defined partial state.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Namespace == "" {
		return nil, fmt.Errorf("%w: namespace required", ErrRequest)
	}

	normalized := text.Normalize(req.Text)
	checksum := contentHash(normalized)
	docID := req.DocumentID
	if docID == "" {
		docID = checksum
	}

	res := &Result{DocumentID: docID, Namespace: req.Namespace}

	// Prior chunk count decides how many stale ids to trim after the new
	// set is fully indexed.
	prior := 0
	if existing, err := p.docs.Get(ctx, docID); err == nil {
		prior = existing.ChunkCount
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}

	doc := &store.Document{
		ID:         docID,
		Namespace:  req.Namespace,
		SourceType: req.SourceType,
		Status:     store.StatusPending,
		Checksum:   checksum,
	}
	if err := p.docs.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("register document %s: %w", docID, err)
	}
	if err := p.docs.ClearChunkFailures(ctx, docID); err != nil {
		return nil, fmt.Errorf("clear chunk failures for %s: %w", docID, err)
	}

	p.setStatus(ctx, docID, store.StatusChunking)
	chunks := p.chunker.SplitAll(normalized)
	res.ChunksTotal = len(chunks)

	p.setStatus(ctx, docID, store.StatusEmbedding)
	for start := 0; start < len(chunks); start += p.embedBatch {
		if err := ctx.Err(); err != nil {
			p.finalize(ctx, res, prior)
			return res, err
		}
		end := start + p.embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := p.indexBatch(ctx, req, docID, chunks[start:end], res); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.finalize(ctx, res, prior)
				return res, err
			}
			p.setStatus(ctx, docID, store.StatusFailed)
			return res, err
		}
	}

	p.finalize(ctx, res, prior)
	slog.InfoContext(ctx, "document ingested",
		"document_id", docID, "namespace", req.Namespace,
		"chunks", res.ChunksTotal, "indexed", res.ChunksIndexed, "status", res.Status)
	return res, nil
}

// IngestFile extracts text from the file and ingests it. Extraction failure
// marks the document failed and names the originating file.
func (p *Pipeline) IngestFile(ctx context.Context, req FileRequest) (*Result, error) {
	if p.extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", ErrRequest)
	}
	docID := req.DocumentID
	if docID == "" {
		docID = contentHash(string(req.Data))
	}

	raw, err := p.extractor.Extract(ctx, req.FileName, req.Data, req.MimeType)
	if err != nil {
		doc := &store.Document{
			ID: docID, Namespace: req.Namespace, SourceType: req.SourceType,
			Status: store.StatusFailed,
		}
		if saveErr := p.docs.Save(ctx, doc); saveErr != nil {
			slog.ErrorContext(ctx, "failed to record extraction failure", "document_id", docID, "error", saveErr)
		}
		return nil, err
	}

	return p.Ingest(ctx, Request{
		Namespace:  req.Namespace,
		DocumentID: docID,
		SourceType: req.SourceType,
		Text:       raw,
	})
}

// Delete removes the document and everything derived from it. From the
// caller's point of view the cascade is atomic: chunk records leave the index
// first, then the registry row (and its failure records) go.
func (p *Pipeline) Delete(ctx context.Context, namespace, documentID string) error {
	deleted, err := p.idx.DeleteDocument(ctx, namespace, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", documentID, err)
	}
	if err := p.docs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	slog.InfoContext(ctx, "document deleted", "document_id", documentID, "namespace", namespace, "chunks", len(deleted))
	return nil
}

// indexBatch embeds one batch of chunks and upserts the survivors.
// Embedding failure after retries is recorded per chunk and is not fatal;
// a dimension mismatch is a programmer error and aborts the document.
func (p *Pipeline) indexBatch(ctx context.Context, req Request, docID string, batch []text.Chunk, res *Result) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	embedded, err := p.embedWithRetry(ctx, texts)
	if err != nil {
		// A dying context is not a chunk defect: the batch will be seen
		// again on the next run, so nothing is recorded against it.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		for _, c := range batch {
			res.Failures = append(res.Failures, ChunkFailure{Index: c.Index, Err: err})
			if recErr := p.docs.RecordChunkFailure(context.WithoutCancel(ctx), docID, c.Index, err.Error()); recErr != nil {
				slog.ErrorContext(ctx, "failed to record chunk failure", "document_id", docID, "chunk_index", c.Index, "error", recErr)
			}
		}
		slog.WarnContext(ctx, "embedding batch failed after retries",
			"document_id", docID, "first_chunk", batch[0].Index, "chunks", len(batch), "error", err)
		return nil
	}

	for i, c := range batch {
		if embedded[i].Truncated {
			slog.WarnContext(ctx, "chunk truncated to model input limit", "document_id", docID, "chunk_index", c.Index)
		}
		meta := index.Metadata{
			DocumentID: docID,
			ChunkIndex: c.Index,
			SourceType: req.SourceType,
			Extra:      map[string]string{"text": c.Text},
		}
		if err := p.idx.Upsert(ctx, req.Namespace, ChunkID(docID, c.Index), embedded[i].Vector, meta); err != nil {
			if errors.Is(err, index.ErrDimensionMismatch) {
				return err
			}
			res.Failures = append(res.Failures, ChunkFailure{Index: c.Index, Err: err})
			continue
		}
		res.ChunksIndexed++
	}
	return nil
}

func (p *Pipeline) embedWithRetry(ctx context.Context, texts []string) ([]embed.Result, error) {
	for attempt := 1; ; attempt++ {
		embedded, err := p.embedder.Embed(ctx, texts, embed.ModeDocument)
		if err == nil {
			return embedded, nil
		}
		delay, ok := p.retry.Next(attempt, err)
		if !ok {
			return nil, err
		}
		slog.WarnContext(ctx, "embedding attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// finalize trims stale surplus chunks from a previous ingestion and settles
// the document status. The trim happens only after a fully indexed run:
// when chunks failed, the prior set stays put so the document never has an
// unsearchable gap.
func (p *Pipeline) finalize(ctx context.Context, res *Result, prior int) {
	complete := len(res.Failures) == 0 && res.ChunksIndexed == res.ChunksTotal

	if complete {
		for i := res.ChunksTotal; i < prior; i++ {
			if err := p.idx.Delete(ctx, res.Namespace, ChunkID(res.DocumentID, i)); err != nil {
				slog.WarnContext(ctx, "failed to trim stale chunk", "document_id", res.DocumentID, "chunk_index", i, "error", err)
			}
		}
		if err := p.docs.UpdateChunkCount(ctx, res.DocumentID, res.ChunksTotal); err != nil {
			slog.ErrorContext(ctx, "failed to update chunk count", "document_id", res.DocumentID, "error", err)
		}
	}

	switch {
	case complete:
		res.Status = store.StatusIndexed
	case res.ChunksIndexed > 0:
		res.Status = store.StatusPartial
	default:
		res.Status = store.StatusFailed
	}
	p.setStatus(ctx, res.DocumentID, res.Status)
}

// setStatus persists a status transition. The write is detached from the
// caller's context so a cancelled run still leaves an inspectable row.
func (p *Pipeline) setStatus(ctx context.Context, docID, status string) {
	if err := p.docs.UpdateStatus(context.WithoutCancel(ctx), docID, status); err != nil {
		slog.ErrorContext(ctx, "failed to update document status", "document_id", docID, "status", status, "error", err)
	}
}

// DeriveDocumentID returns the content-hash id a request without an explicit
// document id will be stored under. Callers that publish asynchronously use it
// to hand back an id before the pipeline runs.
func DeriveDocumentID(raw string) string {
	return contentHash(text.Normalize(raw))
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
