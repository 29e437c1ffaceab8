package embed

import (
	"context"
	"errors"
)

var (
	// ErrModelLoad covers one-time model initialization failures.
	ErrModelLoad = errors.New("embedding model load failed")
	// ErrEmbedding covers per-call embedding failures.
	ErrEmbedding = errors.New("embedding failed")
	// ErrEmbedTimeout is returned when a call gives up waiting for a model slot.
	ErrEmbedTimeout = errors.New("timed out waiting for embedding slot")
)

// Mode selects the encoding path. Some models encode queries asymmetrically
// from documents, so the distinction is explicit rather than implied by call
// site.
type Mode string

const (
	ModeDocument Mode = "document"
	ModeQuery    Mode = "query"
)

// Model is the loaded embedding model. Implementations must be safe for
// concurrent use; the Service above them bounds how many calls are in flight.
type Model interface {
	Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error)
	Dimensions() int
	MaxInputTokens() int
	Close() error
}
