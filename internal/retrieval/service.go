package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"semdex/internal/index"
)

// SearchResult is one ranked hit, flattened for the HTTP layer.
type SearchResult struct {
	ID         string            `json:"id"`
	Score      float32           `json:"score"`
	Relevance  string            `json:"relevance"`
	Text       string            `json:"text,omitempty"`
	DocumentID string            `json:"documentId"`
	ChunkIndex int               `json:"chunkIndex"`
	SourceType string            `json:"sourceType,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// SearchOptions narrows a search. Zero-value fields apply no restriction.
type SearchOptions struct {
	DocumentID string
	SourceType string
	Metric     index.Metric
}

type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

type Searcher interface {
	Query(namespace string, vector []float32, k int, metric index.Metric, filter index.FilterFunc) ([]index.Result, error)
}

type Service struct {
	embedder Embedder
	searcher Searcher
	topK     int
	logger   *QueryLogger
}

func NewService(e Embedder, s Searcher, topK int, l *QueryLogger) *Service {
	if topK <= 0 {
		topK = 10
	}
	return &Service{embedder: e, searcher: s, topK: topK, logger: l}
}

// Search embeds the query and ranks the namespace's records against it. An
// empty or unknown namespace yields an empty result, not an error.
func (s *Service) Search(ctx context.Context, namespace, query string, k int, opts *SearchOptions) ([]SearchResult, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	if k <= 0 {
		k = s.topK
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var metric index.Metric
	if opts != nil {
		metric = opts.Metric
	}
	hits, err := s.searcher.Query(namespace, vec, k, metric, filterFor(opts))
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			ID:         h.ID,
			Score:      h.Score,
			Relevance:  relevanceLabel(h.Score),
			Text:       h.Meta.Extra["text"],
			DocumentID: h.Meta.DocumentID,
			ChunkIndex: h.Meta.ChunkIndex,
			SourceType: h.Meta.SourceType,
			Extra:      h.Meta.Extra,
		})
	}

	if s.logger != nil {
		s.logger.Log(ctx, QueryLogEntry{
			Namespace:  namespace,
			Query:      query,
			NumResults: len(results),
			Duration:   time.Since(start),
		})
	}
	return results, nil
}

func filterFor(opts *SearchOptions) index.FilterFunc {
	if opts == nil || (opts.DocumentID == "" && opts.SourceType == "") {
		return nil
	}
	return func(m index.Metadata) bool {
		if opts.DocumentID != "" && m.DocumentID != opts.DocumentID {
			return false
		}
		if opts.SourceType != "" && m.SourceType != opts.SourceType {
			return false
		}
		return true
	}
}

func relevanceLabel(score float32) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.6:
		return "medium"
	default:
		return "low"
	}
}
