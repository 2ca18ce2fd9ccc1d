package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGLINE_"

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from RAGLINE_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("STORAGE_PATH", &c.Storage.Path)
	e.boolean("STORAGE_IN_MEMORY", &c.Storage.InMemory)

	e.str("AI_PROVIDER", &c.AI.Provider)
	e.str("EMBEDDING_HOST", &c.AI.EmbeddingHost)
	e.str("CHAT_HOST", &c.AI.ChatHost)
	e.str("EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	e.str("CHAT_MODEL", &c.AI.ChatModel)
	e.str("API_KEY_ENV", &c.AI.APIKeyEnv)
	e.integer("EMBEDDING_DIMENSIONS", &c.AI.Dimensions)

	e.integer("CHUNK_SIZE", &c.Chunker.Size)
	e.integer("CHUNK_OVERLAP", &c.Chunker.Overlap)

	e.integer("INGEST_POOL_SIZE", &c.Ingestion.PoolSize)
	e.duration("INGEST_STUCK_AFTER", &c.Ingestion.StuckAfter)
	e.integer("INGEST_MAX_CHUNKS", &c.Ingestion.MaxChunks)

	e.integer("SEARCH_TOP_K", &c.Search.TopK)

	e.integer("CHAT_HISTORY", &c.Chat.HistoryMessages)
	e.float("CHAT_TEMPERATURE", &c.Chat.Temperature)
	e.integer("CHAT_MAX_TOKENS", &c.Chat.MaxTokens)

	e.str("BLOB_TYPE", &c.Blob.Type)
	e.str("BLOB_ROOT", &c.Blob.Root)
	e.str("MINIO_ENDPOINT", &c.Blob.Minio.Endpoint)
	e.str("MINIO_ACCESS_KEY", &c.Blob.Minio.AccessKey)
	e.str("MINIO_SECRET_KEY", &c.Blob.Minio.SecretKey)
	e.str("MINIO_BUCKET", &c.Blob.Minio.Bucket)
	e.boolean("MINIO_USE_SSL", &c.Blob.Minio.UseSSL)

	e.str("SERVER_ADDR", &c.Server.Addr)
	e.integer("RATE_LIMIT_PER_MINUTE", &c.Server.RateLimitPerMinute)

	return e.err
}

// envReader records the first parse error and skips the remaining fields.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	return e.lookup(EnvPrefix + name)
}

func (e *envReader) fail(name string, err error) {
	e.err = fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, err)
			return
		}
		*dst = d
	}
}
