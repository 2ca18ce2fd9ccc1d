// Package config loads ragline settings from defaults, an optional YAML
// file, an optional .env file and RAGLINE_* environment variables, in that
// order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/blobstore"
	"gopkg.in/yaml.v3"
)

// StorageConfig configures the BadgerDB store.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// AIConfig configures the embedding and generation provider.
type AIConfig struct {
	Provider       string `yaml:"provider"`
	EmbeddingHost  string `yaml:"embedding_host"`
	ChatHost       string `yaml:"chat_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Dimensions     int    `yaml:"dimensions"`
	StreamBuffer   int    `yaml:"stream_buffer"`
}

// ChunkerConfig configures document splitting.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	PoolSize   int           `yaml:"pool_size"`
	StuckAfter time.Duration `yaml:"stuck_after"`
	// MaxChunks caps the chunks of one document. The store is sized so a
	// run of this many chunks fits in one transaction.
	MaxChunks int `yaml:"max_chunks"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	TopK          int           `yaml:"top_k"`
	QueryAttempts int           `yaml:"query_attempts"`
	QueryBackoff  time.Duration `yaml:"query_backoff"`
}

// ChatConfig configures the chat orchestrator.
type ChatConfig struct {
	HistoryMessages int     `yaml:"history_messages"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	RefusalMessage  string  `yaml:"refusal_message"`
}

// BlobConfig selects the object store.
type BlobConfig struct {
	Type  string                `yaml:"type"` // "file" or "minio"
	Root  string                `yaml:"root"`
	Minio blobstore.MinioConfig `yaml:"minio"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	MaxUploadBytes     int64  `yaml:"max_upload_bytes"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// Config is the root application configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Search    SearchConfig    `yaml:"search"`
	Chat      ChatConfig      `yaml:"chat"`
	Blob      BlobConfig      `yaml:"blob"`
	Server    ServerConfig    `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Storage:  StorageConfig{Path: "./ragline-data"},
		AI: AIConfig{
			Provider:       aiDefaults.Provider,
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			ChatHost:       aiDefaults.ChatHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			ChatModel:      aiDefaults.ChatModel,
			APIKeyEnv:      "OPENAI_API_KEY",
			StreamBuffer:   aiDefaults.StreamBuffer,
		},
		Chunker:   ChunkerConfig{Size: 1000, Overlap: 200},
		Ingestion: IngestionConfig{PoolSize: 8, StuckAfter: 30 * time.Minute, MaxChunks: 1000},
		Search:    SearchConfig{TopK: 5, QueryAttempts: 3, QueryBackoff: 200 * time.Millisecond},
		Chat: ChatConfig{
			HistoryMessages: 10,
			Temperature:     0.7,
			MaxTokens:       1000,
		},
		Blob:   BlobConfig{Type: "file", Root: "./ragline-blobs"},
		Server: ServerConfig{Addr: ":8080", MaxUploadBytes: 32 << 20, RateLimitPerMinute: 60},
	}
}

// Load builds the configuration. path names an optional YAML file; a
// missing file is not an error. A .env file next to the working directory
// is loaded into the environment before RAGLINE_* overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads a .env file without overriding variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("config: chunker overlap %d must be in [0, size %d)", c.Chunker.Overlap, c.Chunker.Size)
	}
	if c.Search.TopK <= 0 {
		return errors.New("config: search.top_k must be positive")
	}
	if c.Chat.HistoryMessages < 0 {
		return errors.New("config: chat.history_messages cannot be negative")
	}
	if c.Ingestion.PoolSize <= 0 {
		return errors.New("config: ingestion.pool_size must be positive")
	}
	if c.Ingestion.MaxChunks <= 0 {
		return errors.New("config: ingestion.max_chunks must be positive")
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return errors.New("config: storage.path is required")
	}
	switch c.Blob.Type {
	case "file":
		if c.Blob.Root == "" {
			return errors.New("config: blob.root is required")
		}
	case "minio":
		if c.Blob.Minio.Endpoint == "" || c.Blob.Minio.Bucket == "" {
			return errors.New("config: blob.minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("config: unknown blob type %q", c.Blob.Type)
	}
	return c.AIConfig().Validate()
}

// AIConfig converts the provider section into an ai.Config. The API key is
// read from the environment variable named by APIKeyEnv.
func (c *Config) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithProvider(c.AI.Provider),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithChatHost(c.AI.ChatHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithChatModel(c.AI.ChatModel),
		ai.WithDimensions(c.AI.Dimensions),
		ai.WithStreamBuffer(c.AI.StreamBuffer),
	}
	if c.AI.APIKeyEnv != "" {
		opts = append(opts, ai.WithAPIKey(os.Getenv(c.AI.APIKeyEnv)))
	}
	return ai.NewConfig(opts...)
}
