package config

const (
	// TopicIngestDocument is the NSQ topic for document ingestion jobs.
	TopicIngestDocument = "ingest.document"

	// TopicDeleteDocument is the NSQ topic for document removal jobs.
	TopicDeleteDocument = "ingest.delete"

	// ChannelIngest is the consumer channel shared by the ingest worker pool.
	ChannelIngest = "semdex"
)
