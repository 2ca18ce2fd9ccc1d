package reembed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// BatchProcessor replaces the embeddings of one document at a time.
type BatchProcessor struct {
	docs           storage.DocumentRepository
	chunks         storage.ChunkRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per embedding API call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(docs storage.DocumentRepository, chunks storage.ChunkRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		docs:           docs,
		chunks:         chunks,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds every chunk of a document and records the new model on
// it. Vectors are normalized before they are stored. The document is
// updated atomically: on error none of its embeddings change. Returns the
// number of chunks embedded.
func (bp *BatchProcessor) Process(ctx context.Context, documentID core.ID) (int, error) {
	embedded := 0
	err := bp.docs.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := bp.docs.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		// a concurrent ingestion owns the document now
		if doc.Status != core.StatusProcessed {
			return nil
		}

		chunks, err := bp.chunks.GetChunks(ctx, documentID)
		if err != nil {
			return fmt.Errorf("failed to load chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}

		model := bp.embedder.ModelName()
		embeddings := make([]*core.Embedding, len(chunks))
		for i, chunk := range chunks {
			var vector []float32
			err := ai.RetryWithBackoff(ctx, func() error {
				var err error
				vector, err = bp.embedder.EmbedText(ctx, chunk.Content)
				return err
			}, bp.maxRetries, bp.retryBaseDelay)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d after %d attempts: %w", chunk.Index, bp.maxRetries, err)
			}
			embeddings[i] = &core.Embedding{
				ChunkID: chunk.ID,
				Vector:  core.NormalizeVector(vector),
				Model:   model,
			}
		}

		if _, err := bp.chunks.SaveEmbeddings(ctx, embeddings...); err != nil {
			return fmt.Errorf("failed to store embeddings: %w", err)
		}

		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string)
		}
		doc.Metadata[core.MetaModel] = model
		doc.Metadata[core.MetaEmbeddings] = strconv.Itoa(len(embeddings))
		doc.Metadata[core.MetaEmbedFailed] = "0"
		if _, err := bp.docs.UpdateDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		embedded = len(embeddings)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return embedded, nil
}
