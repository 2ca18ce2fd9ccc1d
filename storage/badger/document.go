package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}
	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocument stores a new document.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.Status == "" {
		doc.Status = core.StatusUploaded
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		doc.ID = id
		doc.CreatedAt = time.Now().UTC()
		doc.UpdatedAt = doc.CreatedAt

		if err := putDocument(tx, doc); err != nil {
			return err
		}
		return tx.Set(makeDocumentOwnerKey(doc.OwnerID, doc.ID), nil)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return doc, err
}

// UpdateDocument replaces a stored document.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		old, err := readDocument(tx, doc.ID)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		// Owner and creation time never change.
		doc.OwnerID = old.OwnerID
		doc.CreatedAt = old.CreatedAt
		doc.UpdatedAt = time.Now().UTC()
		return putDocument(tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document, its chunks and their embeddings.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if _, err := deleteChunks(tx, id); err != nil {
			return err
		}
		if err := tx.Delete(makeDocumentOwnerKey(doc.OwnerID, id)); err != nil {
			return err
		}
		return tx.Delete(makeDocumentKey(id))
	})
}

// ListDocumentsByOwner returns an owner's documents, newest first.
func (r *DocumentRepository) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		keys := scanKeys(tx, makeDocumentOwnerPrefix(ownerID))
		// IDs grow monotonically, so walking the index backwards yields newest first
		for i := len(keys) - 1; i >= 0; i-- {
			doc, err := readDocument(tx, idSuffix(keys[i]))
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	return docs, err
}

// ListDocumentsByStatus returns documents in status, optionally only those
// not updated since updatedBefore.
func (r *DocumentRepository) ListDocumentsByStatus(ctx context.Context, status core.DocumentStatus, updatedBefore time.Time) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if doc.Status != status {
				continue
			}
			if !updatedBefore.IsZero() && !doc.UpdatedAt.Before(updatedBefore) {
				continue
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

// Helper functions

func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	return getValue(tx, makeDocumentKey(id), storage.UnmarshalDocument)
}

func putDocument(tx *badger.Txn, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.ID), value)
}
