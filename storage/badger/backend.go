package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

const (
	defaultSequenceBandwidth = 100

	// ingestValueThreshold moves chunk and embedding values to the value
	// log on disk so a transaction only carries their pointers.
	ingestValueThreshold = 1 << 10

	// maxValueThreshold is badger's ceiling for inline values. In-memory
	// stores keep every value inline.
	maxValueThreshold = 1 << 20

	// badger admits a transaction of at most 15% of the memtable size.
	txnShareOfMemTable = 15
	txnSlack           = 1 << 20
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ storage.Transactor = (*Backend)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// BackendOption adjusts the BadgerDB options before the database opens.
type BackendOption func(*badger.Options)

// WithMemTableSize sets the memtable size, raising the transaction size limit
// with it.
func WithMemTableSize(size int64) BackendOption {
	return func(opts *badger.Options) {
		*opts = opts.WithMemTableSize(size)
	}
}

// WithValueThreshold sets the value size from which values are written to
// the value log instead of the LSM tree. In-memory stores keep every value
// in the LSM tree.
func WithValueThreshold(size int64) BackendOption {
	return func(opts *badger.Options) {
		*opts = opts.WithValueThreshold(size)
	}
}

// WithIngestCapacity sizes the store so that a single transaction can hold
// the chunks and embeddings of a document split into maxChunks chunks of at
// most chunkBytes bytes with vectors of dims components.
func WithIngestCapacity(dims, chunkBytes, maxChunks int) BackendOption {
	return func(opts *badger.Options) {
		threshold := int64(maxValueThreshold)
		if !opts.InMemory {
			*opts = opts.WithValueThreshold(ingestValueThreshold)
			threshold = ingestValueThreshold
		}
		need := int64(maxChunks)*ChunkTxnBytes(dims, chunkBytes, threshold) + txnSlack
		if size := need * 100 / txnShareOfMemTable; size > opts.MemTableSize {
			*opts = opts.WithMemTableSize(size)
		}
	}
}

// ChunkTxnBytes estimates what one ingested chunk adds to its transaction:
// the chunk record written twice, its ID lookup entry, its embedding and the
// deletes left by a previous run. Values of at least threshold bytes count as
// value log pointers.
func ChunkTxnBytes(dims, chunkBytes int, threshold int64) int64 {
	entry := func(key, value int64) int64 {
		if value < threshold {
			return key + value + 2
		}
		return key + 12 + 2
	}
	const (
		chunkKey     = int64(len(chunkPrefix) + 16)
		chunkIDKey   = int64(len(chunkIDPrefix) + 8)
		embeddingKey = int64(len(embeddingPrefix) + 16)
		// ids, offsets, lengths and timestamp as varints
		chunkFields = 96
		// ids, length prefix, model name and timestamp
		embeddingFields = 128
	)
	chunk := entry(chunkKey, int64(chunkBytes)+chunkFields)
	lookup := entry(chunkIDKey, chunkKey)
	embedding := entry(embeddingKey, int64(dims)*4+embeddingFields)
	deletes := entry(chunkKey, 0) + entry(chunkIDKey, 0) + entry(embeddingKey, 0)
	return 2*chunk + lookup + embedding + deletes
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool, backendOpts ...BackendOption) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None
	for _, apply := range backendOpts {
		apply(&opts)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a fresh BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is discarded when fn returns; fn must commit it explicitly.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// GetSequence returns a BadgerDB sequence for generating sequential IDs.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(name), defaultSequenceBandwidth)
}

type txKey struct{}

// txFromContext returns the transaction bound to ctx by WithTransaction.
func txFromContext(ctx context.Context) (*badger.Txn, bool) {
	tx, ok := ctx.Value(txKey{}).(*badger.Txn)
	return tx, ok
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := txFromContext(ctx)
	return ok
}

// WithTransaction executes fn within a read-write transaction carried by
// the context handed to fn. Implements storage.Transactor.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
			return err
		}
		return commitError(tx.Commit())
	}, true)
}

// update runs fn in the transaction carried by ctx, or in a new read-write
// transaction that is committed when fn succeeds.
func (b *Backend) update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(tx)
	}
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(tx); err != nil {
			return err
		}
		return commitError(tx.Commit())
	}, true)
}

// view runs fn in the transaction carried by ctx, or in a new read-only one.
func (b *Backend) view(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(tx)
	}
	return b.WithTx(fn, false)
}

// commitError classifies a commit failure.
func commitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	default:
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
}

// nextID draws the next non-zero value from a sequence.
func nextID(seq *badger.Sequence) (core.ID, error) {
	id, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if id == 0 {
		if id, err = seq.Next(); err != nil {
			return 0, err
		}
	}
	return core.ID(id), nil
}

// getValue reads and decodes the value at key. Returns nil, nil when the
// key does not exist.
func getValue[T any](tx *badger.Txn, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var v *T
	err = item.Value(func(val []byte) error {
		var decodeErr error
		v, decodeErr = decode(val)
		return decodeErr
	})
	return v, err
}

// scanKeys returns copies of every key under prefix, in key order.
func scanKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}
