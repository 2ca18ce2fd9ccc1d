// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ragline assembles the storage, provider, ingestion, search and
// chat components into one Engine configured from a config.Config.
package ragline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ai/goopenai"
	"github.com/poiesic/ragline/ai/openai"
	"github.com/poiesic/ragline/blobstore"
	"github.com/poiesic/ragline/chat"
	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/config"
	"github.com/poiesic/ragline/extract"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/reembed"
	"github.com/poiesic/ragline/search"
	"github.com/poiesic/ragline/storage"
	"github.com/poiesic/ragline/storage/badger"
)

// Engine owns every long-lived component of a ragline process.
type Engine struct {
	config   *config.Config
	repos    *badger.Repositories
	provider ai.AIProvider
	blobs    blobstore.Store
	pipeline *ingestion.Pipeline
	searcher *search.Searcher
	chat     *chat.Orchestrator
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	blobs    blobstore.Store
	logger   *slog.Logger
}

// WithProvider supplies the AI provider instead of building one from the
// configuration.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithBlobStore supplies the object store instead of building one from the
// configuration.
func WithBlobStore(store blobstore.Store) EngineOption {
	return func(o *engineOptions) {
		o.blobs = store
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewProvider builds the AI provider named by cfg.Provider.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	cfg.Normalize()
	switch cfg.Provider {
	case ai.ProviderLangchain:
		return openai.NewProvider(cfg)
	case ai.ProviderGoOpenAI:
		return goopenai.NewProvider(cfg)
	}
	return nil, fmt.Errorf("%w: %q", ai.ErrUnknownProvider, cfg.Provider)
}

// NewBlobStore builds the object store selected by cfg.Type.
func NewBlobStore(ctx context.Context, cfg config.BlobConfig) (blobstore.Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "file":
		return blobstore.NewFileStore(cfg.Root)
	case "minio":
		return blobstore.NewMinioStore(ctx, cfg.Minio)
	}
	return nil, fmt.Errorf("unknown blob store type %q", cfg.Type)
}

// fallbackDimensions sizes the store when the configured model keeps its
// native dimension.
const fallbackDimensions = 1536

func capacityDimensions(cfg *config.Config) int {
	if cfg.AI.Dimensions > 0 {
		return cfg.AI.Dimensions
	}
	return fallbackDimensions
}

// Open builds an Engine from cfg. The caller must Close it.
func Open(ctx context.Context, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := options.logger

	// Open backend
	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory,
		badger.WithIngestCapacity(capacityDimensions(cfg), cfg.Chunker.Size*utf8.UTFMax, cfg.Ingestion.MaxChunks))
	if err != nil {
		return nil, err
	}
	repos, err := badger.OpenRepositories(backend, cfg.AI.Dimensions)
	if err != nil {
		backend.Close()
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		repos:    repos,
		provider: options.provider,
		blobs:    options.blobs,
		logger:   logger,
	}

	if err := e.build(ctx); err != nil {
		e.Close()
		return nil, err
	}
	logger.Info("engine ready",
		"storage", cfg.Storage.Path,
		"provider", cfg.AI.Provider,
		"embedding_model", e.provider.Embedder().ModelName(),
		"chat_model", e.provider.Generator().ModelName())
	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	cfg := e.config
	var err error

	if e.provider == nil {
		if e.provider, err = NewProvider(cfg.AIConfig()); err != nil {
			return err
		}
	}
	if e.blobs == nil {
		if e.blobs, err = NewBlobStore(ctx, cfg.Blob); err != nil {
			return err
		}
	}

	splitter, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return err
	}
	e.pipeline, err = ingestion.NewPipeline(e.repos.Documents, e.repos.Chunks, e.provider.Embedder(),
		ingestion.WithPoolSize(cfg.Ingestion.PoolSize),
		ingestion.WithMaxChunks(cfg.Ingestion.MaxChunks),
		ingestion.WithChunker(splitter),
		ingestion.WithExtractor(extract.Default(e.logger)),
		ingestion.WithBlobStore(e.blobs),
		ingestion.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}

	e.searcher, err = search.NewSearcher(e.repos.Chunks, e.provider.Embedder(),
		search.WithQueryRetry(cfg.Search.QueryAttempts, cfg.Search.QueryBackoff),
		search.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}

	e.chat, err = chat.NewOrchestrator(e.repos.Conversations, e.searcher, e.provider.Generator(),
		chat.WithHistoryMessages(cfg.Chat.HistoryMessages),
		chat.WithTopK(cfg.Search.TopK),
		chat.WithMaxTokens(cfg.Chat.MaxTokens),
		chat.WithRefusalMessage(cfg.Chat.RefusalMessage),
		chat.WithEventBuffer(cfg.AI.StreamBuffer),
		chat.WithLogger(e.logger),
	)
	return err
}

// Close releases every component. It is safe to call on a partially
// built engine.
func (e *Engine) Close() error {
	var errs []error
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.repos != nil {
		if err := e.repos.Close(); err != nil {
			e.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config {
	return e.config
}

// Provider returns the AI provider.
func (e *Engine) Provider() ai.AIProvider {
	return e.provider
}

// BlobStore returns the object store holding uploaded files.
func (e *Engine) BlobStore() blobstore.Store {
	return e.blobs
}

// Documents returns the document repository.
func (e *Engine) Documents() storage.DocumentRepository {
	return e.repos.Documents
}

// Chunks returns the chunk repository.
func (e *Engine) Chunks() storage.ChunkRepository {
	return e.repos.Chunks
}

// Conversations returns the conversation repository.
func (e *Engine) Conversations() storage.ConversationRepository {
	return e.repos.Conversations
}

// Checkpoints returns the checkpoint repository.
func (e *Engine) Checkpoints() storage.CheckpointRepository {
	return e.repos.Checkpoints
}

// Pipeline returns the ingestion pipeline.
func (e *Engine) Pipeline() *ingestion.Pipeline {
	return e.pipeline
}

// Searcher returns the searcher.
func (e *Engine) Searcher() *search.Searcher {
	return e.searcher
}

// Chat returns the chat orchestrator.
func (e *Engine) Chat() *chat.Orchestrator {
	return e.chat
}

// NewReembedder creates a reembedder over the engine's stores using its
// current embedder. progress receives human-readable progress output.
func (e *Engine) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(e.repos.Documents, e.repos.Chunks, e.repos.Checkpoints, e.provider.Embedder(), cfg, progress)
}

// RecoverStuck releases documents stuck in processing for longer than the
// configured ingestion.stuck_after.
func (e *Engine) RecoverStuck(ctx context.Context) (int, error) {
	return e.pipeline.RecoverStuck(ctx, e.config.Ingestion.StuckAfter)
}
