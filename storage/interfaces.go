package storage

import (
	"context"
	"time"

	"github.com/poiesic/ragline/core"
)

// Transactor runs units of work atomically.
type Transactor interface {
	// WithTransaction executes fn within a single read-write transaction.
	// Repository calls made with the context passed to fn join that
	// transaction. If fn returns an error, every write is discarded.
	// If fn returns nil, the transaction is committed.
	// Calls nested inside an active transaction join the outer one.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	Transactor

	// Close releases resources held by the repository.
	Close() error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository

	// AddDocument stores a new document, assigning its ID and timestamps.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// UpdateDocument replaces a stored document and bumps UpdatedAt.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// DeleteDocument removes a document together with its chunks and embeddings.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// ListDocumentsByOwner returns an owner's documents, newest first.
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]*core.Document, error)

	// ListDocumentsByStatus returns every document in the given status,
	// optionally only those last updated before updatedBefore (zero = no bound).
	ListDocumentsByStatus(ctx context.Context, status core.DocumentStatus, updatedBefore time.Time) ([]*core.Document, error)
}

// ChunkRepository provides operations for chunks, their embeddings and
// similarity search over them.
type ChunkRepository interface {
	Repository

	// AddChunks stores a batch of chunks, assigning IDs and timestamps.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunks returns a document's chunks ordered by index.
	GetChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// DeleteDocumentChunks removes every chunk of a document and their
	// embeddings. Returns the number of chunks removed.
	DeleteDocumentChunks(ctx context.Context, documentID core.ID) (int, error)

	// SaveEmbeddings stores embeddings and links them from their chunks.
	// A chunk's previous embedding, if any, is replaced.
	// Returns ErrDimensionMismatch if a vector has the wrong length and
	// ErrNotFound if a chunk doesn't exist.
	SaveEmbeddings(ctx context.Context, embeddings ...*core.Embedding) ([]*core.Embedding, error)

	// GetEmbedding returns the embedding of a chunk.
	// Returns ErrNotFound if the chunk has none.
	GetEmbedding(ctx context.Context, chunkID core.ID) (*core.Embedding, error)

	// CountEmbeddings returns how many of a document's chunks have embeddings.
	CountEmbeddings(ctx context.Context, documentID core.ID) (int, error)

	// FindNearest returns up to k chunks nearest to vector by cosine
	// distance, nearest first, ties broken by chunk ID. When ownerID is
	// not empty only chunks of that owner's documents are eligible; the
	// filter is applied before ranking.
	FindNearest(ctx context.Context, vector []float32, ownerID string, k int) ([]*core.SearchResult, error)

	// Dimensions returns the configured vector dimension (0 = unchecked).
	Dimensions() int
}

// ConversationRepository provides operations for conversations and messages.
type ConversationRepository interface {
	Repository

	// AddConversation stores a new conversation, assigning ID and timestamps.
	AddConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error)

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if the conversation doesn't exist.
	GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error)

	// UpdateConversation replaces a stored conversation and bumps UpdatedAt.
	UpdateConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error)

	// ListConversationsByOwner returns an owner's conversations, most
	// recently updated first.
	ListConversationsByOwner(ctx context.Context, ownerID string) ([]*core.Conversation, error)

	// AddMessages appends messages to their conversations. Messages keep
	// their CreatedAt if set; ties are ordered by insertion.
	AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error)

	// GetRecentMessages returns the last n messages of a conversation,
	// oldest first.
	GetRecentMessages(ctx context.Context, conversationID core.ID, n int) ([]*core.Message, error)

	// ListMessages pages a conversation's messages most recent first.
	// When beforeID is not zero, only messages older than it are returned.
	ListMessages(ctx context.Context, conversationID core.ID, limit int, beforeID core.ID) ([]*core.Message, error)
}

// CheckpointRepository persists progress markers for resumable batch jobs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for a processor type.
	ClearCheckpoint(ctx context.Context, processorType string) error
}
