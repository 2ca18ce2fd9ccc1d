package chat

import "github.com/poiesic/ragline/core"

// EventType names the kind of a streamed event.
type EventType string

const (
	// EventToken carries one fragment of the reply.
	EventToken EventType = "token"
	// EventDone ends a successful turn.
	EventDone EventType = "done"
	// EventError ends a failed turn.
	EventError EventType = "error"
)

// Event is one item of a turn's stream. Every stream ends with exactly one
// EventDone or EventError and is then closed.
type Event struct {
	Type           EventType
	Token          string
	ConversationID core.ID
	MessageID      core.ID
	Err            error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Request describes one turn.
type Request struct {
	// UserID identifies the caller. Empty means anonymous.
	UserID string
	// ConversationID continues an existing conversation. Zero, or an id
	// the caller does not own, starts a new one.
	ConversationID core.ID
	Message        string
	UseRetrieval   bool
	Temperature    float64
	// MaxTokens caps the reply length; zero selects the orchestrator default.
	MaxTokens int
}
