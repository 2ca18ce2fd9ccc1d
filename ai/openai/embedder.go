package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/tmc/langchaingo/embeddings"
)

// Embedder implements ai.Embedder with langchaingo's embedding wrapper.
// Newlines are stripped before texts are sent.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func embedderFor(client embeddings.EmbedderClient, model string) (*Embedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &Embedder{
		embedder: embedder,
		model:    model,
		logger:   slog.Default().With("component", "langchain-embedder", "model", model),
	}, nil
}

// NewEmbedder creates a standalone embedder for config.EmbeddingHost.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := newClient(config, config.EmbeddingHost)
	if err != nil {
		return nil, err
	}
	return embedderFor(client, config.EmbeddingModel)
}

// EmbedText returns the embedding of text. It makes exactly one request;
// callers that want retries wrap the embedder with ai.WithRetry.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Warn("embedding request failed", "chars", len(text), "err", err)
		return nil, fmt.Errorf("%w: %w", ai.ErrEmbeddingFailed, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", ai.ErrEmbeddingFailed)
	}
	e.logger.Debug("embedded text", "chars", len(text), "dims", len(vector), "elapsed", time.Since(start))
	return vector, nil
}

// ModelName returns the embedding model identifier.
func (e *Embedder) ModelName() string {
	return e.model
}
