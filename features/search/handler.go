package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"semdex/internal/index"
	"semdex/internal/middleware"
	"semdex/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, namespace, query string, k int, opts *retrieval.SearchOptions) ([]retrieval.SearchResult, error)
}

type Handler struct {
	service Searcher
}

func NewHandler(service Searcher) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Namespace  string `json:"namespace"`
		Query      string `json:"query"`
		K          int    `json:"k"`
		DocumentID string `json:"document_id"`
		SourceType string `json:"source_type"`
		Metric     string `json:"metric"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if req.Namespace == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "namespace is required", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}

	var opts *retrieval.SearchOptions
	if req.DocumentID != "" || req.SourceType != "" || req.Metric != "" {
		opts = &retrieval.SearchOptions{
			DocumentID: req.DocumentID,
			SourceType: req.SourceType,
			Metric:     index.Metric(req.Metric),
		}
	}

	results, err := h.service.Search(r.Context(), req.Namespace, req.Query, req.K, opts)
	if err != nil {
		if errors.Is(err, index.ErrDimensionMismatch) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("search failed", "error", err, "namespace", req.Namespace)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if results == nil {
		results = []retrieval.SearchResult{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": results,
		"meta": map[string]int{"count": len(results)},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
