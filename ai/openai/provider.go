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

package openai

import (
	"log/slog"

	"github.com/poiesic/ragline/ai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider implements ai.AIProvider over langchaingo's OpenAI client.
// When the embedding and chat endpoints live on the same host both
// services share one client.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	shared    bool
	logger    *slog.Logger
}

// NewProvider creates the embedding and chat services described by config.
//
// Returns ai.AIProvider interface (not *Provider) so callers stay
// independent of the langchaingo client.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	chatClient, err := newClient(config, config.ChatHost)
	if err != nil {
		return nil, err
	}
	embedClient := chatClient
	shared := config.EmbeddingHost == config.ChatHost
	if !shared {
		if embedClient, err = newClient(config, config.EmbeddingHost); err != nil {
			return nil, err
		}
	}

	embedder, err := embedderFor(embedClient, config.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		embedder:  embedder,
		generator: generatorFor(chatClient, config.ChatModel, config.StreamBuffer),
		shared:    shared,
		logger:    slog.Default().With("component", "langchain-provider"),
	}
	p.logger.Debug("provider ready",
		"embedding_host", config.EmbeddingHost,
		"chat_host", config.ChatHost,
		"shared_client", shared)
	return p, nil
}

// newClient builds a langchaingo client for host. The client carries both
// model names; each service only uses the one it needs.
func newClient(config *ai.Config, host string) (*openai.LLM, error) {
	return openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(config.Token()),
		openai.WithModel(config.ChatModel),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the streaming completion service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close releases resources held by the provider. langchaingo clients
// hold nothing beyond the shared HTTP transport.
func (p *Provider) Close() error {
	p.logger.Debug("closing provider", "shared_client", p.shared)
	return nil
}
