package goopenai

import (
	"log/slog"

	"github.com/poiesic/ragline/ai"
	openai "github.com/sashabaranov/go-openai"
)

// Provider implements ai.AIProvider with go-openai clients.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider validates config and creates the embedding and chat clients.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		embedder:  newEmbedder(config),
		generator: newGenerator(config),
		logger:    slog.Default().With("component", "goopenai-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the streaming completion service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close is a no-op; go-openai clients hold no resources beyond the shared
// HTTP transport.
func (p *Provider) Close() error {
	p.logger.Debug("closing go-openai provider")
	return nil
}

func newClient(host, token string) *openai.Client {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = host
	return openai.NewClientWithConfig(cfg)
}
