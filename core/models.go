package core

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated from database sequences; 0 means "not yet assigned".
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusError      DocumentStatus = "error"
)

// CanTransition reports whether a document may move from one status to another.
// Only the ingestion pipeline drives these transitions.
func CanTransition(from, to DocumentStatus) bool {
	switch to {
	case StatusProcessing:
		return from == StatusUploaded || from == StatusProcessed || from == StatusError
	case StatusProcessed, StatusError:
		return from == StatusProcessing
	}
	return false
}

// Document identifies an uploaded file and tracks its ingestion state.
type Document struct {
	ID        ID
	OwnerID   string
	Filename  string
	Locator   string // object storage locator
	FileType  string // declared type, lower case without dot ("txt", "docx")
	Size      int64
	Status    DocumentStatus
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Metadata keys written by the ingestion pipeline.
const (
	MetaLastError   = "error"
	MetaChunks      = "chunks"
	MetaEmbeddings  = "embeddings"
	MetaEmbedFailed = "embedding_failures"
	MetaModel       = "embedding_model"
)

// Chunk is a contiguous slice of a document's extracted text.
// A chunk owns at most one embedding, referenced by EmbeddingID.
type Chunk struct {
	ID          ID
	DocumentID  ID
	Index       int
	Content     string
	ContentHash ID
	StartChar   int
	EndChar     int
	Length      int
	EmbeddingID ID // 0 when no embedding exists
	CreatedAt   time.Time
}

// HasEmbedding reports whether the chunk has a stored embedding.
func (c *Chunk) HasEmbedding() bool {
	return c.EmbeddingID != 0
}

// Embedding is the vector representation of exactly one chunk.
type Embedding struct {
	ID        ID
	ChunkID   ID
	Vector    []float32
	Model     string
	CreatedAt time.Time
}

// DefaultConversationTitle is assigned to lazily created conversations.
const DefaultConversationTitle = "New conversation"

// Conversation is a named thread of turns owned by one user.
type Conversation struct {
	ID        ID
	OwnerID   string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role identifies the speaker of a message. Only two values exist.
type Role int

const (
	RoleUser Role = iota + 1
	RoleAssistant
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole converts a role name into a Role. Any name other than
// "user" or "assistant" is rejected.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if err := ValidateRole(r); err != nil {
		return nil, err
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// GenerationMetadata records how an assistant message was produced.
type GenerationMetadata struct {
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	UsedRetrieval bool    `json:"used_retrieval"`
	Interrupted   bool    `json:"interrupted,omitempty"`
	Model         string  `json:"model,omitempty"`
}

// Message is one turn in a conversation. Messages are immutable once stored.
type Message struct {
	ID             ID
	ConversationID ID
	Role           Role
	Content        string
	Metadata       *GenerationMetadata
	CreatedAt      time.Time
}

// SearchResult is a chunk returned by similarity search.
// Distance is the cosine distance to the query (0 identical, 2 opposite).
type SearchResult struct {
	Chunk        *Chunk
	DocumentName string
	OwnerID      string
	Distance     float32
}

// Checkpoint records how far a long-running batch job has progressed.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	UpdatedAt     time.Time
}
