package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"semdex/internal/embed"
)

// Model adapts the Gemini embedding API to the embed.Model port. The genai
// client is loaded once and is safe for concurrent use; the task type gives
// queries an encoding distinct from documents.
type Model struct {
	client    *genai.Client
	model     string
	dims      int
	maxTokens int
}

func NewModel(ctx context.Context, apiKey, model string, dims, maxInputTokens int, opts ...option.ClientOption) (*Model, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embed.ErrModelLoad, err)
	}
	return &Model{client: client, model: model, dims: dims, maxTokens: maxInputTokens}, nil
}

func (m *Model) Embed(ctx context.Context, texts []string, mode embed.Mode) ([][]float32, error) {
	em := m.client.EmbeddingModel(m.model)
	if mode == embed.ModeQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	} else {
		em.TaskType = genai.TaskTypeRetrievalDocument
	}

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	slog.DebugContext(ctx, "embedding batch", "model", m.model, "mode", string(mode), "size", len(texts))
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini returned nil embedding at position %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

func (m *Model) Dimensions() int { return m.dims }

func (m *Model) MaxInputTokens() int { return m.maxTokens }

func (m *Model) Close() error { return m.client.Close() }
