package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"semdex/internal/middleware"
	"semdex/internal/pipeline"
	"semdex/internal/store"
	"semdex/internal/worker"
)

func TestIngestConsumer_HandleMessage(t *testing.T) {
	p := new(MockIngestor)
	consumer := worker.NewIngestConsumer(p, 0)

	payload := worker.IngestPayload{
		Namespace:     "docs",
		DocumentID:    "d1",
		SourceType:    "text",
		Text:          "some extracted text",
		CorrelationID: "corr-1",
	}
	body, _ := json.Marshal(payload)
	msg := &nsq.Message{Body: body}

	p.On("Ingest", mock.MatchedBy(func(ctx context.Context) bool {
		return middleware.GetCorrelationID(ctx) == "corr-1"
	}), mock.MatchedBy(func(req pipeline.Request) bool {
		return req.Namespace == "docs" && req.DocumentID == "d1" && req.Text == "some extracted text"
	})).Return(&pipeline.Result{
		DocumentID: "d1", Namespace: "docs", Status: store.StatusIndexed,
		ChunksTotal: 3, ChunksIndexed: 3,
	}, nil)

	err := consumer.HandleMessage(msg)
	assert.NoError(t, err)
	p.AssertExpectations(t)
}

func TestIngestConsumer_PoisonPill(t *testing.T) {
	p := new(MockIngestor)
	consumer := worker.NewIngestConsumer(p, 0)

	msg := &nsq.Message{Body: []byte("invalid json")}

	err := consumer.HandleMessage(msg)
	assert.NoError(t, err) // Should return nil (ack)
	p.AssertNotCalled(t, "Ingest")
}

func TestIngestConsumer_EmptyBody(t *testing.T) {
	p := new(MockIngestor)
	consumer := worker.NewIngestConsumer(p, 0)

	err := consumer.HandleMessage(&nsq.Message{})
	assert.NoError(t, err)
	p.AssertNotCalled(t, "Ingest")
}

func TestIngestConsumer_PipelineErrorRetries(t *testing.T) {
	p := new(MockIngestor)
	consumer := worker.NewIngestConsumer(p, 0)

	body, _ := json.Marshal(worker.IngestPayload{Namespace: "docs", Text: "text"})
	msg := &nsq.Message{Body: body}

	p.On("Ingest", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	err := consumer.HandleMessage(msg)
	assert.Error(t, err) // NSQ requeues on error
	p.AssertExpectations(t)
}

func TestIngestConsumer_PartialRequeues(t *testing.T) {
	p := new(MockIngestor)
	consumer := worker.NewIngestConsumer(p, 0)

	body, _ := json.Marshal(worker.IngestPayload{Namespace: "docs", DocumentID: "d1", Text: "text"})
	msg := &nsq.Message{Body: body}

	p.On("Ingest", mock.Anything, mock.Anything).Return(&pipeline.Result{
		DocumentID: "d1", Namespace: "docs", Status: store.StatusPartial,
		ChunksTotal: 3, ChunksIndexed: 2,
		Failures: []pipeline.ChunkFailure{{Index: 2, Err: errors.New("embed failed")}},
	}, nil)

	err := consumer.HandleMessage(msg)
	assert.Error(t, err)
	p.AssertExpectations(t)
}

func TestDeleteConsumer_HandleMessage(t *testing.T) {
	p := new(MockIngestor)
	consumer := worker.NewDeleteConsumer(p)

	body, _ := json.Marshal(worker.DeletePayload{Namespace: "docs", DocumentID: "d1", CorrelationID: "corr-2"})
	msg := &nsq.Message{Body: body}

	p.On("Delete", mock.MatchedBy(func(ctx context.Context) bool {
		return middleware.GetCorrelationID(ctx) == "corr-2"
	}), "docs", "d1").Return(nil)

	err := consumer.HandleMessage(msg)
	assert.NoError(t, err)
	p.AssertExpectations(t)
}

func TestDeleteConsumer_MissingFieldsDiscarded(t *testing.T) {
	p := new(MockIngestor)
	consumer := worker.NewDeleteConsumer(p)

	body, _ := json.Marshal(worker.DeletePayload{Namespace: "docs"})
	err := consumer.HandleMessage(&nsq.Message{Body: body})
	assert.NoError(t, err)
	p.AssertNotCalled(t, "Delete")
}
