package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"semdex/internal/text"
)

const (
	defaultBatchSize   = 16
	defaultConcurrency = 4
	defaultSlotTimeout = 30 * time.Second
)

// Result is one embedded text. Truncated records that the input exceeded the
// model's maximum length and was cut down before encoding.
type Result struct {
	Vector    []float32
	Truncated bool
}

type Options struct {
	BatchSize   int
	Concurrency int
	SlotTimeout time.Duration
}

// Service wraps the shared model with batching and bounded concurrency. The
// model is the process-wide mutation-sensitive resource; callers block on a
// slot up to SlotTimeout and then fail rather than hang.
type Service struct {
	model       Model
	batchSize   int
	slots       chan struct{}
	slotTimeout time.Duration
}

func NewService(model Model, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.SlotTimeout <= 0 {
		opts.SlotTimeout = defaultSlotTimeout
	}
	return &Service{
		model:       model,
		batchSize:   opts.BatchSize,
		slots:       make(chan struct{}, opts.Concurrency),
		slotTimeout: opts.SlotTimeout,
	}
}

func (s *Service) Dimensions() int { return s.model.Dimensions() }

func (s *Service) Close() error { return s.model.Close() }

// Embed encodes texts in input order. Batching is internal: output order
// equals input order regardless of batch boundaries. Texts longer than the
// model limit are truncated deterministically, never rejected.
func (s *Service) Embed(ctx context.Context, texts []string, mode Mode) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	results := make([]Result, len(texts))
	prepared := make([]string, len(texts))
	for i, t := range texts {
		prepared[i], results[i].Truncated = s.truncate(t)
	}

	for start := 0; start < len(prepared); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + s.batchSize
		if end > len(prepared) {
			end = len(prepared)
		}
		batch := prepared[start:end]

		vectors, err := s.model.Embed(ctx, batch, mode)
		if err != nil {
			return nil, fmt.Errorf("%w: batch at offset %d: %v", ErrEmbedding, start, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: model returned %d vectors for %d texts", ErrEmbedding, len(vectors), len(batch))
		}
		for i, vec := range vectors {
			if len(vec) != s.model.Dimensions() {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, model reports %d",
					ErrEmbedding, start+i, len(vec), s.model.Dimensions())
			}
			results[start+i].Vector = vec
		}
	}
	return results, nil
}

// EmbedQuery encodes a single query string on the query encoding path.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	results, err := s.Embed(ctx, []string{query}, ModeQuery)
	if err != nil {
		return nil, err
	}
	return results[0].Vector, nil
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(s.slotTimeout)
	defer timer.Stop()

	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: after %s", ErrEmbedTimeout, s.slotTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// truncate cuts the text to the model's maximum input length on a token
// boundary. The cut is deterministic so repeated ingestion of the same text
// embeds the same bytes.
func (s *Service) truncate(t string) (string, bool) {
	limit := s.model.MaxInputTokens()
	if limit <= 0 {
		return t, false
	}
	tokens := text.Tokenize(t)
	if len(tokens) <= limit {
		return t, false
	}
	slog.Debug("truncating oversized embedding input", "tokens", len(tokens), "limit", limit)
	return strings.Join(tokens[:limit], " "), true
}
