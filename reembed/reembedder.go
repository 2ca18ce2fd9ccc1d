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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// CheckpointType identifies reembedding progress in the checkpoint store.
const CheckpointType = "reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents fetched per batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Resume continues after the last checkpointed document instead of
	// starting over
	Resume bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Stats summarizes a completed run.
type Stats struct {
	Documents int
	Chunks    int
}

// Reembedder orchestrates the reembedding of every processed document.
type Reembedder struct {
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *DocumentIterator
	logger      *slog.Logger
}

// NewReembedder creates a new reembedder. checkpoints may be nil, in which
// case runs cannot be resumed.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(
	docs storage.DocumentRepository,
	chunks storage.ChunkRepository,
	checkpoints storage.CheckpointRepository,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
) (*Reembedder, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		return nil, ai.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(docs, chunks, embedder, config.MaxRetries, config.RetryDelay),
		iterator:    NewDocumentIterator(docs, config.BatchSize),
		logger:      slog.Default().With("component", "reembed"),
	}, nil
}

// Run re-embeds every processed document with the configured embedder.
// Progress is reported to the configured writer and checkpointed after
// each document; the checkpoint is cleared once the run completes.
func (r *Reembedder) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	afterID, err := r.startingPoint(ctx)
	if err != nil {
		return stats, err
	}

	pending, err := r.iterator.Pending(ctx, afterID)
	if err != nil {
		return stats, fmt.Errorf("failed to query documents: %w", err)
	}
	total := len(pending)
	if total == 0 {
		fmt.Fprintf(r.progress, "No documents to reembed (0 documents)\n")
		return stats, r.clearCheckpoint(ctx)
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d documents (batch size: %d)\n",
		total, r.iterator.batchSize)

	// Initialize progress tracker
	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, afterID, func(docs []*core.Document) error {
		for _, doc := range docs {
			n, err := r.processor.Process(ctx, doc.ID)
			if err != nil {
				return fmt.Errorf("failed to reembed document %d: %w", doc.ID, err)
			}
			stats.Documents++
			stats.Chunks += n

			if err := r.saveCheckpoint(ctx, doc.ID); err != nil {
				return err
			}
			tracker.Advance(n)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	// Finish progress tracking
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d documents (%d chunks) in %v\n",
		stats.Documents, stats.Chunks, elapsed.Round(time.Millisecond))
	r.logger.Info("reembedding complete", "documents", stats.Documents, "chunks", stats.Chunks, "elapsed", elapsed)

	return stats, r.clearCheckpoint(ctx)
}

func (r *Reembedder) startingPoint(ctx context.Context) (core.ID, error) {
	if r.checkpoints == nil {
		return 0, nil
	}
	if !r.config.Resume {
		return 0, r.clearCheckpoint(ctx)
	}
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, CheckpointType)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return 0, nil
	}
	r.logger.Info("resuming reembedding", "after", checkpoint.LastID, "saved", checkpoint.UpdatedAt)
	return checkpoint.LastID, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, lastID core.ID) error {
	if r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: CheckpointType, LastID: lastID})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *Reembedder) clearCheckpoint(ctx context.Context) error {
	if r.checkpoints == nil {
		return nil
	}
	return r.checkpoints.ClearCheckpoint(ctx, CheckpointType)
}
