package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"semdex"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"semdex"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	EnableMirror   bool   `envconfig:"ENABLE_MIRROR" default:"false"`

	ExtractorURL string `envconfig:"EXTRACTOR_URL" default:"http://extractor:8000"`
	NSQLookupd   string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost     string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP     string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY"`
	EmbedModel          string `envconfig:"EMBED_MODEL" default:"text-embedding-004"`
	EmbedDimensions     int    `envconfig:"EMBED_DIMENSIONS" default:"768"`
	EmbedMaxInputTokens int    `envconfig:"EMBED_MAX_INPUT_TOKENS" default:"2048"`
	EmbedBatchSize      int    `envconfig:"EMBED_BATCH_SIZE" default:"16"`
	EmbedConcurrency    int    `envconfig:"EMBED_CONCURRENCY" default:"4"`
	EmbedSlotTimeoutSec int    `envconfig:"EMBED_SLOT_TIMEOUT_SECONDS" default:"30"`

	MaxChunkTokens     int `envconfig:"MAX_CHUNK_TOKENS" default:"1000"`
	ChunkOverlapTokens int `envconfig:"CHUNK_OVERLAP_TOKENS" default:"200"`

	RetryAttempts     int `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelayMs  int `envconfig:"RETRY_BASE_DELAY_MS" default:"500"`
	IngestTimeoutSec  int `envconfig:"INGEST_TIMEOUT_SECONDS" default:"300"`
	SearchDefaultTopK int `envconfig:"SEARCH_DEFAULT_TOP_K" default:"10"`

	EnableAPI          bool   `envconfig:"ENABLE_API" default:"true"`
	EnableIngestWorker bool   `envconfig:"ENABLE_INGEST_WORKER" default:"true"`
	IngestConcurrency  int    `envconfig:"INGEST_CONCURRENCY" default:"4"`
	MigrationPath      string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	NSQMaxMsgSize      int64  `envconfig:"NSQ_MAX_MSG_SIZE" default:"10485760"` // 10MB

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.MaxChunkTokens <= 0 {
		return fmt.Errorf("MAX_CHUNK_TOKENS must be positive, got %d", c.MaxChunkTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.MaxChunkTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS must be in [0, MAX_CHUNK_TOKENS), got %d", c.ChunkOverlapTokens)
	}
	if c.EmbedDimensions <= 0 {
		return fmt.Errorf("EMBED_DIMENSIONS must be positive, got %d", c.EmbedDimensions)
	}
	return nil
}
