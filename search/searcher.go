package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// Default retry policy for query embedding.
const (
	DefaultQueryAttempts = 3
	DefaultQueryBackoff  = 200 * time.Millisecond
)

// Searcher provides semantic search over stored chunks.
type Searcher struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithQueryRetry sets how often a failed query embedding is retried and the
// base delay between attempts.
func WithQueryRetry(attempts int, backoff time.Duration) Option {
	return func(s *Searcher) error {
		if attempts <= 0 {
			return ai.ErrInvalidMaxAttempts
		}
		s.attempts = attempts
		s.backoff = backoff
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		chunks:   chunks,
		attempts: DefaultQueryAttempts,
		backoff:  DefaultQueryBackoff,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.embedder = ai.WithRetry(embedder, s.attempts, s.backoff)
	s.logger = s.logger.With("component", "search")
	return s, nil
}

// Search returns up to k chunks nearest to the query, nearest first.
// A non-empty ownerID restricts results to that owner's documents.
func (s *Searcher) Search(ctx context.Context, query, ownerID string, k int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, ownerID, k, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query, ownerID string, k int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, ownerID, k)

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}
	monitor.AfterQueryEmbedding(vector)

	results, err := s.chunks.FindNearest(ctx, vector, ownerID, k)
	monitor.AfterVectorSearch(results, err)
	if err != nil {
		s.logger.Error("vector search failed, continuing without results", "owner", ownerID, "err", err)
		results = []*core.SearchResult{}
	}

	monitor.Finish(results)
	return results, nil
}

// RetrieveContext searches and renders the hits as a context block.
// The boolean is false when nothing relevant was found.
func (s *Searcher) RetrieveContext(ctx context.Context, query, ownerID string, k int) (string, bool, error) {
	results, err := s.Search(ctx, query, ownerID, k)
	if err != nil {
		return "", false, err
	}
	block, ok := AssembleContext(results)
	return block, ok, nil
}

// Rendering of context blocks.
const (
	documentHeader   = "[Document: %s]\n%s\n"
	contextSeparator = "\n---\n"
)

// AssembleContext renders search results in rank order as one block of text.
// It returns false when results is empty, which callers must treat as
// "no context" rather than as an empty context.
func AssembleContext(results []*core.SearchResult) (string, bool) {
	if len(results) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf(documentHeader, r.DocumentName, r.Chunk.Content))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, contextSeparator), true
}
