package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// candidate is a scored embedding awaiting ranking.
type candidate struct {
	docID    core.ID
	chunkID  core.ID
	distance float32
}

// FindNearest performs an exact nearest-neighbour scan over every stored
// embedding. Owner filtering happens during the scan, so truncation to k
// only ever sees eligible chunks.
func (r *ChunkRepository) FindNearest(ctx context.Context, vector []float32, ownerID string, k int) ([]*core.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	if err := r.checkDimensions(vector); err != nil {
		return nil, err
	}

	var results []*core.SearchResult
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var eligible map[core.ID]bool
		if ownerID != "" {
			eligible = make(map[core.ID]bool)
			for _, key := range scanKeys(tx, makeDocumentOwnerPrefix(ownerID)) {
				eligible[idSuffix(key)] = true
			}
			if len(eligible) == 0 {
				return nil
			}
		}

		candidates, err := scoreEmbeddings(ctx, tx, vector, eligible)
		if err != nil {
			return err
		}

		slices.SortFunc(candidates, func(a, b candidate) int {
			if c := cmp.Compare(a.distance, b.distance); c != 0 {
				return c
			}
			return cmp.Compare(a.chunkID, b.chunkID)
		})
		if len(candidates) > k {
			candidates = candidates[:k]
		}

		docs := make(map[core.ID]*core.Document)
		for _, c := range candidates {
			chunk, err := readChunkByID(tx, c.chunkID)
			if err != nil {
				return err
			}
			if chunk == nil {
				continue
			}
			doc, ok := docs[c.docID]
			if !ok {
				if doc, err = readDocument(tx, c.docID); err != nil {
					return err
				}
				docs[c.docID] = doc
			}
			result := &core.SearchResult{Chunk: chunk, Distance: c.distance}
			if doc != nil {
				result.DocumentName = doc.Filename
				result.OwnerID = doc.OwnerID
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// scoreEmbeddings computes the distance from query to every eligible
// embedding. A nil eligible set admits every document.
func scoreEmbeddings(ctx context.Context, tx *badger.Txn, query []float32, eligible map[core.ID]bool) ([]candidate, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(embeddingPrefix)
	opts.PrefetchValues = eligible == nil
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var candidates []candidate
	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := iter.Item()
		docID, chunkID, ok := parseEmbeddingKey(item.Key())
		if !ok {
			continue
		}
		if eligible != nil && !eligible[docID] {
			continue
		}

		var distance float32
		err := item.Value(func(val []byte) error {
			emb, err := storage.UnmarshalEmbedding(val)
			if err != nil {
				return err
			}
			distance, err = core.CosineDistance(query, emb.Vector)
			if err != nil {
				return fmt.Errorf("%w: chunk %d: %w", storage.ErrDimensionMismatch, chunkID, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{docID: docID, chunkID: chunkID, distance: distance})
	}
	return candidates, nil
}
