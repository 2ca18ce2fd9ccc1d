package mock

import (
	"context"
	"sync"
	"time"

	"github.com/poiesic/ragline/ai"
)

// Call records one Stream invocation.
type Call struct {
	Messages []ai.Message
	Options  ai.GenerateOptions
}

// MockGenerator is a test double for ai.Generator that replays a script.
type MockGenerator struct {
	// Tokens are emitted in order by every Stream call.
	Tokens []string

	// Err, when set, is returned by the provider after Tokens are emitted.
	Err error

	// Delay is slept before each token.
	Delay time.Duration

	// BlockAfterTokens makes the provider wait for cancellation once the
	// script is exhausted, like a slow model mid-answer.
	BlockAfterTokens bool

	// StreamFunc replaces the scripted behavior when set.
	StreamFunc func(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) <-chan ai.Fragment

	// Model is reported by ModelName.
	Model string

	// Emitted receives a value after every token is handed to the stream.
	Emitted chan struct{}

	mu    sync.Mutex
	calls []Call
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a generator replaying tokens.
func NewMockGenerator(tokens ...string) *MockGenerator {
	return &MockGenerator{Tokens: tokens, Model: "mock-chat"}
}

// Stream replays the script through ai.Pump.
func (m *MockGenerator) Stream(ctx context.Context, messages []ai.Message, opts ai.GenerateOptions) <-chan ai.Fragment {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Messages: append([]ai.Message(nil), messages...), Options: opts})
	m.mu.Unlock()

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, messages, opts)
	}

	return ai.Pump(ctx, 1, func(ctx context.Context, emit func(string) error) error {
		for _, tok := range m.Tokens {
			if m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := emit(tok); err != nil {
				return err
			}
			if m.Emitted != nil {
				select {
				case m.Emitted <- struct{}{}:
				case <-ctx.Done():
				}
			}
		}
		if m.BlockAfterTokens {
			<-ctx.Done()
			return ctx.Err()
		}
		return m.Err
	})
}

// ModelName returns the configured model name.
func (m *MockGenerator) ModelName() string {
	return m.Model
}

// Calls returns every recorded Stream invocation.
func (m *MockGenerator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns the number of Stream invocations.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
