package store

import "time"

// Document statuses. Transitions are monotonic through the ingestion states;
// failed and partial are reachable from any of them, and a retry restarts at
// pending.
const (
	StatusPending   = "pending"
	StatusChunking  = "chunking"
	StatusEmbedding = "embedding"
	StatusIndexed   = "indexed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

type Document struct {
	ID         string
	Namespace  string
	SourceType string
	Status     string
	ChunkCount int
	Checksum   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChunkFailure records one chunk that exhausted its embedding retries, so
// partial failures stay inspectable per chunk after the ingestion call ends.
type ChunkFailure struct {
	DocumentID string
	ChunkIndex int
	Reason     string
	CreatedAt  time.Time
}
