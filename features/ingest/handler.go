package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"semdex/internal/middleware"
	"semdex/internal/pipeline"
	"semdex/internal/store"
)

type Handler struct {
	service       *Service
	maxUploadSize int64
}

func NewHandler(service *Service, maxUploadSizeMB int64) *Handler {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = 50
	}
	return &Handler{service: service, maxUploadSize: maxUploadSizeMB << 20}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := h.service.Enqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrRequest) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("operation failed", "error", err, "namespace", req.Namespace)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": receipt}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) CreateSync(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.Sync(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrRequest) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("operation failed", "error", err, "namespace", req.Namespace)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.writeResult(r.Context(), w, res)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	namespace := r.FormValue("namespace")
	if namespace == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "namespace is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	validExts := map[string]bool{
		".pdf": true, ".md": true, ".txt": true, ".html": true, ".docx": true,
	}
	if !validExts[ext] {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unsupported file type", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to read file", http.StatusBadRequest)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(ext)
	}

	res, err := h.service.Upload(r.Context(), pipeline.FileRequest{
		Namespace:  namespace,
		DocumentID: r.FormValue("document_id"),
		SourceType: r.FormValue("source_type"),
		FileName:   header.Filename,
		MimeType:   mimeType,
		Data:       data,
	})
	if err != nil {
		slog.Error("upload ingestion failed", "error", err, "file", header.Filename)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.writeResult(r.Context(), w, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doc, failures, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.Error("operation failed", "error", err, "id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if failures == nil {
		failures = []store.ChunkFailure{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"document": docJSON(doc),
			"failures": failuresJSON(failures),
		},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "namespace is required", http.StatusBadRequest)
		return
	}
	async := r.URL.Query().Get("async") == "true"

	if err := h.service.Delete(r.Context(), namespace, id, async); err != nil {
		slog.Error("delete failed", "error", err, "id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if async {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeResult(ctx context.Context, w http.ResponseWriter, res *pipeline.Result) {
	failures := make([]map[string]interface{}, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, map[string]interface{}{
			"chunk_index": f.Index,
			"reason":      f.Err.Error(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"document_id":    res.DocumentID,
			"namespace":      res.Namespace,
			"status":         res.Status,
			"chunks_total":   res.ChunksTotal,
			"chunks_indexed": res.ChunksIndexed,
			"failures":       failures,
		},
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func docJSON(doc *store.Document) map[string]interface{} {
	return map[string]interface{}{
		"id":          doc.ID,
		"namespace":   doc.Namespace,
		"source_type": doc.SourceType,
		"status":      doc.Status,
		"chunk_count": doc.ChunkCount,
		"checksum":    doc.Checksum,
		"created_at":  doc.CreatedAt,
		"updated_at":  doc.UpdatedAt,
	}
}

func failuresJSON(failures []store.ChunkFailure) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(failures))
	for _, f := range failures {
		out = append(out, map[string]interface{}{
			"chunk_index": f.ChunkIndex,
			"reason":      f.Reason,
			"created_at":  f.CreatedAt,
		})
	}
	return out
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
