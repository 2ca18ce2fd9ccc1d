package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use and must not retry
// internally; callers decide whether a failure is worth repeating.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Failures, including empty or malformed provider responses, wrap
	// ErrEmbeddingFailed.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// ModelName identifies the model producing the vectors. It is recorded
	// on every stored embedding.
	ModelName() string
}

// ChatRole identifies the author of a prompt message.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// Message is one entry of the prompt sent to a Generator.
type Message struct {
	Role    ChatRole
	Content string
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	// SystemPrompt, when non-empty, is sent ahead of the messages.
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Fragment is one piece of a streamed completion. A non-nil Err is always
// the last fragment of a stream.
type Fragment struct {
	Text string
	Err  error
}

// Generator produces streamed completions.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Stream starts a completion and returns its fragments in provider order.
	// The channel is closed when the completion ends, which is the only
	// end-of-stream signal. A provider failure arrives as a final Fragment
	// whose Err wraps ErrGenerationFailed. Cancelling ctx stops the
	// producer; consumers may stop reading once they have cancelled.
	Stream(ctx context.Context, messages []Message, opts GenerateOptions) <-chan Fragment

	// ModelName identifies the chat model.
	ModelName() string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and Generator instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the streaming chat completion service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
