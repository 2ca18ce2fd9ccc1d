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
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

const (
	// DefaultBatchSize is the default number of documents handed over in each batch
	DefaultBatchSize = 100
)

// DocumentIterator iterates over processed documents in ID order.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch (must be > 0)
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Pending returns the processed documents with an ID above afterID,
// ordered by ID.
func (it *DocumentIterator) Pending(ctx context.Context, afterID core.ID) ([]*core.Document, error) {
	docs, err := it.repo.ListDocumentsByStatus(ctx, core.StatusProcessed, time.Time{})
	if err != nil {
		return nil, err
	}
	docs = slices.DeleteFunc(docs, func(d *core.Document) bool { return d.ID <= afterID })
	slices.SortFunc(docs, func(a, b *core.Document) int { return cmp.Compare(a.ID, b.ID) })
	return docs, nil
}

// ForEach iterates over the processed documents after afterID, calling fn
// for each batch. Iteration stops on first error from fn or when all
// documents are processed. Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, afterID core.ID, fn func([]*core.Document) error) error {
	// Check context before starting
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	docs, err := it.Pending(ctx, afterID)
	if err != nil {
		return err
	}

	for batch := range slices.Chunk(docs, it.batchSize) {
		if err := fn(batch); err != nil {
			return err
		}

		// Check context after each batch
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}
