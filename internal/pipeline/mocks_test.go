package pipeline_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"semdex/internal/embed"
	"semdex/internal/store"
)

// Mocks

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, texts []string, mode embed.Mode) ([]embed.Result, error) {
	args := m.Called(ctx, texts, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]embed.Result), args.Error(1)
}

// unitEmbedder returns a fixed-direction unit vector per text, deterministically.
type unitEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *unitEmbedder) Embed(_ context.Context, texts []string, _ embed.Mode) ([]embed.Result, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([]embed.Result, len(texts))
	for i, t := range texts {
		var h float32
		for _, r := range t {
			h += float32(r)
		}
		out[i] = embed.Result{Vector: []float32{h, 1, 0}}
	}
	return out, nil
}

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(ctx context.Context, name string, data []byte, mimeType string) (string, error) {
	args := m.Called(ctx, name, data, mimeType)
	return args.String(0), args.Error(1)
}

// memDocs is an in-memory DocumentStore; status transitions are recorded in
// order so tests can assert the state machine.
type memDocs struct {
	mu       sync.Mutex
	docs     map[string]*store.Document
	failures map[string][]store.ChunkFailure
	statuses map[string][]string
}

func newMemDocs() *memDocs {
	return &memDocs{
		docs:     make(map[string]*store.Document),
		failures: make(map[string][]store.ChunkFailure),
		statuses: make(map[string][]string),
	}
}

func (d *memDocs) Save(_ context.Context, doc *store.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.docs[doc.ID]; ok {
		doc.ChunkCount = existing.ChunkCount
	}
	copied := *doc
	d.docs[doc.ID] = &copied
	d.statuses[doc.ID] = append(d.statuses[doc.ID], doc.Status)
	return nil
}

func (d *memDocs) Get(_ context.Context, id string) (*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (d *memDocs) UpdateStatus(_ context.Context, id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc, ok := d.docs[id]; ok {
		doc.Status = status
	}
	d.statuses[id] = append(d.statuses[id], status)
	return nil
}

func (d *memDocs) UpdateChunkCount(_ context.Context, id string, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc, ok := d.docs[id]; ok {
		doc.ChunkCount = count
	}
	return nil
}

func (d *memDocs) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, id)
	delete(d.failures, id)
	return nil
}

// ctxDocs rejects writes on a dead context the way a real sql driver does.
type ctxDocs struct{ *memDocs }

func (d *ctxDocs) UpdateStatus(ctx context.Context, id, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.memDocs.UpdateStatus(ctx, id, status)
}

func (d *ctxDocs) UpdateChunkCount(ctx context.Context, id string, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.memDocs.UpdateChunkCount(ctx, id, count)
}

func (d *ctxDocs) RecordChunkFailure(ctx context.Context, docID string, chunkIndex int, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.memDocs.RecordChunkFailure(ctx, docID, chunkIndex, reason)
}

func (d *memDocs) RecordChunkFailure(_ context.Context, docID string, chunkIndex int, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[docID] = append(d.failures[docID], store.ChunkFailure{DocumentID: docID, ChunkIndex: chunkIndex, Reason: reason})
	return nil
}

func (d *memDocs) ClearChunkFailures(_ context.Context, docID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, docID)
	return nil
}
