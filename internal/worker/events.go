package worker

// IngestPayload is the JSON body published to the ingest topic. Text carries
// already-extracted content; file uploads go through the synchronous HTTP path
// so the broker never holds raw file bytes.
type IngestPayload struct {
	Namespace  string `json:"namespace"`
	DocumentID string `json:"document_id,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	Text       string `json:"text"`

	CorrelationID string `json:"correlation_id"`
}

// DeletePayload asks for a document and all of its chunks to be removed.
type DeletePayload struct {
	Namespace  string `json:"namespace"`
	DocumentID string `json:"document_id"`

	CorrelationID string `json:"correlation_id"`
}
