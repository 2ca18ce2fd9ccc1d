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
	"context"
	"log/slog"

	"github.com/poiesic/ragline/ai"
	"github.com/tmc/langchaingo/llms"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
// langchaingo delivers streamed tokens through a callback; ai.Pump turns
// that callback into a fragment channel.
type Generator struct {
	client llms.Model
	model  string
	buffer int
	logger *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

func generatorFor(client llms.Model, model string, buffer int) *Generator {
	return &Generator{
		client: client,
		model:  model,
		buffer: buffer,
		logger: slog.Default().With("component", "langchain-generator", "model", model),
	}
}

// NewGenerator creates a standalone generator for config.ChatHost.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := newClient(config, config.ChatHost)
	if err != nil {
		return nil, err
	}
	return generatorFor(client, config.ChatModel, config.StreamBuffer), nil
}

// Stream starts a streamed completion.
func (g *Generator) Stream(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) <-chan ai.Fragment {
	content := toMessageContent(messages, opts.SystemPrompt)

	callOpts := []llms.CallOption{
		llms.WithTemperature(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	return ai.Pump(ctx, g.buffer, func(ctx context.Context, emit func(string) error) error {
		streaming := llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return emit(string(chunk))
		})

		g.logger.Debug("starting completion", "messages", len(content))
		_, err := g.client.GenerateContent(ctx, content, append(callOpts, streaming)...)
		if err != nil && ctx.Err() == nil {
			g.logger.Error("completion failed", "err", err)
		}
		return err
	})
}

// ModelName returns the chat model identifier.
func (g *Generator) ModelName() string {
	return g.model
}

func toMessageContent(messages []ai.Message, systemPrompt string) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, msg := range messages {
		content = append(content, llms.TextParts(chatMessageType(msg.Role), msg.Content))
	}
	return content
}

func chatMessageType(role ai.ChatRole) llms.ChatMessageType {
	switch role {
	case ai.ChatRoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.ChatRoleAssistant:
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}
