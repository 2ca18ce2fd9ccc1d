package ingestion

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
)

// embeddingProcessor embeds chunks concurrently on a shared worker pool.
type embeddingProcessor struct {
	pool     *ants.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

func newEmbeddingProcessor(pool *ants.Pool, embedder ai.Embedder, logger *slog.Logger) *embeddingProcessor {
	return &embeddingProcessor{
		pool:     pool,
		embedder: embedder,
		logger:   logger.With("processor", "embeddings"),
	}
}

// process embeds every chunk. The returned slice holds one embedding per
// successfully embedded chunk, in chunk order. A failed chunk is logged and
// counted but does not affect the others. An error is returned only when
// work could not be scheduled at all.
func (ep *embeddingProcessor) process(ctx context.Context, chunks []*core.Chunk) ([]*core.Embedding, int, error) {
	vectors := make([][]float32, len(chunks))
	model := ep.embedder.ModelName()

	var (
		wg        sync.WaitGroup
		submitErr error
	)
	for i, chunk := range chunks {
		wg.Add(1)
		err := ep.pool.Submit(func() {
			defer wg.Done()
			vector, err := ep.embedder.EmbedText(ctx, chunk.Content)
			if err != nil {
				ep.logger.Warn("chunk embedding failed",
					"document", chunk.DocumentID, "chunk", chunk.ID, "index", chunk.Index, "err", err)
				return
			}
			vectors[i] = vector
		})
		if err != nil {
			wg.Done()
			submitErr = err
			break
		}
	}
	wg.Wait()
	if submitErr != nil {
		return nil, 0, submitErr
	}

	embeddings := make([]*core.Embedding, 0, len(chunks))
	failed := 0
	for i, vector := range vectors {
		if vector == nil {
			failed++
			continue
		}
		embeddings = append(embeddings, &core.Embedding{
			ChunkID: chunks[i].ID,
			Vector:  vector,
			Model:   model,
		})
	}

	ep.logger.Debug("chunks embedded", "embedded", len(embeddings), "failed", failed)
	return embeddings, failed, nil
}
