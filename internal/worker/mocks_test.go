package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"semdex/internal/pipeline"
)

// Mocks

type MockIngestor struct{ mock.Mock }

func (m *MockIngestor) Ingest(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Result), args.Error(1)
}

func (m *MockIngestor) Delete(ctx context.Context, namespace, documentID string) error {
	args := m.Called(ctx, namespace, documentID)
	return args.Error(0)
}
