package goopenai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragline/ai"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder implements ai.Embedder with the embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func newEmbedder(config *ai.Config) *Embedder {
	return &Embedder{
		client:     newClient(config.EmbeddingHost, config.Token()),
		model:      config.EmbeddingModel,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "goopenai-embedder"),
	}
}

// NewEmbedder creates an embedder from a validated configuration.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newEmbedder(config), nil
}

// EmbedText generates a vector embedding for a single text string. When
// dimensions are configured the provider is asked for exactly that size and
// any other length is rejected.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding", "length", len(text))

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, fmt.Errorf("%w: %w", ai.ErrEmbeddingFailed, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ai.ErrEmbeddingFailed)
	}

	vector := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vector) != e.dimensions {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ai.ErrEmbeddingFailed, e.dimensions, len(vector))
	}
	return vector, nil
}

// ModelName returns the embedding model identifier.
func (e *Embedder) ModelName() string {
	return e.model
}
