package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

var ErrExtraction = errors.New("text extraction failed")

// Extractor turns uploaded file bytes into raw text. Extraction itself is an
// external collaborator; the ingestion core only consumes its output.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte, mimeType string) (string, error)
}

// HTTPExtractor calls a document-conversion service over HTTP: multipart
// upload in, JSON {"text": ...} out.
type HTTPExtractor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPExtractor(baseURL string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, name string, data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}
	if err := mw.WriteField("mime_type", mimeType); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/extract", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: %s: extractor returned %d: %s", ErrExtraction, name, resp.StatusCode, msg)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %s: decode response: %v", ErrExtraction, name, err)
	}
	return payload.Text, nil
}
