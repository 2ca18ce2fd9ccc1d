package goopenai

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/ragline/ai"
	openai "github.com/sashabaranov/go-openai"
)

// Generator implements ai.Generator with streamed chat completions.
type Generator struct {
	client *openai.Client
	model  string
	buffer int
	logger *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

func newGenerator(config *ai.Config) *Generator {
	return &Generator{
		client: newClient(config.ChatHost, config.Token()),
		model:  config.ChatModel,
		buffer: config.StreamBuffer,
		logger: slog.Default().With("component", "goopenai-generator"),
	}
}

// NewGenerator creates a generator from a validated configuration.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newGenerator(config), nil
}

// Stream starts a streamed completion.
func (g *Generator) Stream(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) <-chan ai.Fragment {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toChatMessages(messages, opts.SystemPrompt),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}

	return ai.Pump(ctx, g.buffer, func(ctx context.Context, emit func(string) error) error {
		stream, err := g.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return err
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if ctx.Err() == nil {
					g.logger.Error("stream failed", "err", err)
				}
				return err
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if err := emit(resp.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	})
}

// ModelName returns the chat model identifier.
func (g *Generator) ModelName() string {
	return g.model
}

func toChatMessages(messages []ai.Message, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case ai.ChatRoleSystem:
			role = openai.ChatMessageRoleSystem
		case ai.ChatRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}
