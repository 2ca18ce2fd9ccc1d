package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// Embeddings live under their chunk's document so cascade deletes and
// owner filtering can work from keys alone.
type ChunkRepository struct {
	backend    *Backend
	chunkSeq   *badger.Sequence
	embedSeq   *badger.Sequence
	dimensions int
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository. When dimensions is
// positive every stored vector must have exactly that length.
func NewChunkRepository(backend *Backend, dimensions int) (*ChunkRepository, error) {
	chunkSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}
	embedSeq, err := backend.GetSequence(embeddingIDSeq)
	if err != nil {
		chunkSeq.Release()
		return nil, err
	}
	return &ChunkRepository{
		backend:    backend,
		chunkSeq:   chunkSeq,
		embedSeq:   embedSeq,
		dimensions: dimensions,
	}, nil
}

// Close releases the ID sequences.
func (r *ChunkRepository) Close() error {
	return errors.Join(r.chunkSeq.Release(), r.embedSeq.Release())
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// Dimensions returns the configured vector dimension.
func (r *ChunkRepository) Dimensions() int {
	return r.dimensions
}

// AddChunks stores a batch of chunks.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		seen := make(map[core.ID]bool)
		now := time.Now().UTC()
		for _, chunk := range chunks {
			if !seen[chunk.DocumentID] {
				doc, err := readDocument(tx, chunk.DocumentID)
				if err != nil {
					return err
				}
				if doc == nil {
					return fmt.Errorf("document %d: %w", chunk.DocumentID, storage.ErrNotFound)
				}
				seen[chunk.DocumentID] = true
			}

			key := makeChunkKey(chunk.DocumentID, chunk.Index)
			if _, err := tx.Get(key); err == nil {
				return fmt.Errorf("chunk %d of document %d: %w", chunk.Index, chunk.DocumentID, storage.ErrDuplicateKey)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			id, err := nextID(r.chunkSeq)
			if err != nil {
				return err
			}
			chunk.ID = id
			chunk.EmbeddingID = 0
			chunk.CreatedAt = now
			if chunk.ContentHash == 0 {
				chunk.ContentHash = core.IDFromContent(chunk.Content)
			}

			if err := putChunk(tx, chunk); err != nil {
				return err
			}
			if err := tx.Set(makeChunkIDKey(chunk.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunks returns a document's chunks ordered by index.
func (r *ChunkRepository) GetChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		chunks, err = readChunks(tx, documentID)
		return err
	})
	return chunks, err
}

// DeleteDocumentChunks removes a document's chunks and their embeddings.
func (r *ChunkRepository) DeleteDocumentChunks(ctx context.Context, documentID core.ID) (int, error) {
	var removed int
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		var err error
		removed, err = deleteChunks(tx, documentID)
		return err
	})
	return removed, err
}

// SaveEmbeddings stores embeddings and links them from their chunks.
func (r *ChunkRepository) SaveEmbeddings(ctx context.Context, embeddings ...*core.Embedding) ([]*core.Embedding, error) {
	for _, emb := range embeddings {
		if err := r.checkDimensions(emb.Vector); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", emb.ChunkID, err)
		}
	}

	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, emb := range embeddings {
			chunk, err := readChunkByID(tx, emb.ChunkID)
			if err != nil {
				return err
			}
			if chunk == nil {
				return fmt.Errorf("chunk %d: %w", emb.ChunkID, storage.ErrNotFound)
			}

			id, err := nextID(r.embedSeq)
			if err != nil {
				return err
			}
			emb.ID = id
			emb.CreatedAt = now

			value, err := storage.MarshalEmbedding(emb)
			if err != nil {
				return err
			}
			if err := tx.Set(makeEmbeddingKey(chunk.DocumentID, chunk.ID), value); err != nil {
				return err
			}

			chunk.EmbeddingID = emb.ID
			if err := putChunk(tx, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

// GetEmbedding returns the embedding of a chunk.
func (r *ChunkRepository) GetEmbedding(ctx context.Context, chunkID core.ID) (*core.Embedding, error) {
	var emb *core.Embedding
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		chunk, err := readChunkByID(tx, chunkID)
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}
		emb, err = getValue(tx, makeEmbeddingKey(chunk.DocumentID, chunk.ID), storage.UnmarshalEmbedding)
		if err != nil {
			return err
		}
		if emb == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return emb, err
}

// CountEmbeddings returns how many of a document's chunks have embeddings.
func (r *ChunkRepository) CountEmbeddings(ctx context.Context, documentID core.ID) (int, error) {
	var count int
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		count = len(scanKeys(tx, makeEmbeddingDocPrefix(documentID)))
		return nil
	})
	return count, err
}

func (r *ChunkRepository) checkDimensions(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", storage.ErrDimensionMismatch)
	}
	if r.dimensions > 0 && len(vector) != r.dimensions {
		return fmt.Errorf("%w: got %d, index expects %d", storage.ErrDimensionMismatch, len(vector), r.dimensions)
	}
	return nil
}

// Helper functions

func putChunk(tx *badger.Txn, chunk *core.Chunk) error {
	value, err := storage.MarshalChunk(chunk)
	if err != nil {
		return err
	}
	return tx.Set(makeChunkKey(chunk.DocumentID, chunk.Index), value)
}

// readChunks returns every chunk of a document in index order.
func readChunks(tx *badger.Txn, documentID core.ID) ([]*core.Chunk, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeChunkDocPrefix(documentID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var chunks []*core.Chunk
	for iter.Rewind(); iter.Valid(); iter.Next() {
		err := iter.Item().Value(func(val []byte) error {
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// readChunkByID resolves a chunk through the reverse lookup index.
// Returns nil, nil when the chunk does not exist.
func readChunkByID(tx *badger.Txn, chunkID core.ID) (*core.Chunk, error) {
	item, err := tx.Get(makeChunkIDKey(chunkID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	chunkKey, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return getValue(tx, chunkKey, storage.UnmarshalChunk)
}

// deleteChunks removes a document's chunks, their lookup entries and
// their embeddings. Returns the number of chunks removed.
func deleteChunks(tx *badger.Txn, documentID core.ID) (int, error) {
	chunks, err := readChunks(tx, documentID)
	if err != nil {
		return 0, err
	}
	for _, chunk := range chunks {
		if err := tx.Delete(makeChunkKey(documentID, chunk.Index)); err != nil {
			return 0, err
		}
		if err := tx.Delete(makeChunkIDKey(chunk.ID)); err != nil {
			return 0, err
		}
	}
	for _, key := range scanKeys(tx, makeEmbeddingDocPrefix(documentID)) {
		if err := tx.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}
