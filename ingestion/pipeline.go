package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/blobstore"
	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/extract"
	"github.com/poiesic/ragline/storage"
)

// Result summarizes one ingestion run.
type Result struct {
	DocumentID        core.ID
	ChunksCreated     int
	EmbeddingsCreated int
	EmbeddingsFailed  int
}

// Pipeline orchestrates document ingestion: extraction, chunking and
// concurrent embedding of the chunks.
type Pipeline struct {
	documents     storage.DocumentRepository
	chunks        storage.ChunkRepository
	embedder      ai.Embedder
	chunker       *chunker.Chunker
	extractor     TextExtractor
	blobs         blobstore.Store
	tempDir       string
	maxChunks     int
	embeddingPool *ants.Pool
	embeddingProc *embeddingProcessor
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunker sets the chunker used to split extracted text.
// Default is chunker.Default().
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.chunker = c
		}
		return nil
	}
}

// WithExtractor sets the text extractor for stored files.
// Default is extract.Default().
func WithExtractor(e TextExtractor) Option {
	return func(p *Pipeline) error {
		if e != nil {
			p.extractor = e
		}
		return nil
	}
}

// WithBlobStore sets the object storage holding uploaded files.
// Without one, only IngestText is available.
func WithBlobStore(store blobstore.Store) Option {
	return func(p *Pipeline) error {
		p.blobs = store
		return nil
	}
}

// WithTempDir sets the directory downloaded files are staged in.
// Default is os.TempDir().
func WithTempDir(dir string) Option {
	return func(p *Pipeline) error {
		p.tempDir = dir
		return nil
	}
}

// WithMaxChunks caps the number of chunks one document may produce.
// Larger documents are rejected before anything is stored. Zero means no cap.
func WithMaxChunks(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			n = 0
		}
		p.maxChunks = n
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents:     documents,
		chunks:        chunks,
		embedder:      embedder,
		chunker:       chunker.Default(),
		embeddingPool: pool,
		logger:        slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.extractor == nil {
		p.extractor = extract.Default(p.logger)
	}
	p.embeddingProc = newEmbeddingProcessor(p.embeddingPool, embedder, p.logger)
	return p, nil
}

// Release stops the worker pool. The pipeline must not be used afterwards.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}

// Register uploads a local file to object storage and records it as a new
// document in the uploaded state.
func (p *Pipeline) Register(ctx context.Context, ownerID, filename, fileType, localPath string) (*core.Document, error) {
	if p.blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	fileType = extract.NormalizeType(fileType)
	doc := &core.Document{
		OwnerID:  ownerID,
		Filename: filename,
		FileType: fileType,
		Status:   core.StatusUploaded,
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	doc.Size = info.Size()

	locator, err := p.blobs.Upload(ctx, localPath, blobstore.NewKey(ownerID, fileType))
	if err != nil {
		return nil, err
	}
	doc.Locator = locator

	added, err := p.documents.AddDocument(ctx, doc)
	if err != nil {
		if delErr := p.blobs.Delete(context.WithoutCancel(ctx), locator); delErr != nil {
			p.logger.Warn("orphaned upload", "locator", locator, "err", delErr)
		}
		return nil, err
	}
	p.logger.Info("document registered", "document", added.ID, "owner", ownerID, "file", filename, "size", doc.Size)
	return added, nil
}

// Ingest extracts the document's stored file and (re)builds its chunks and
// embeddings. Running it again on the same document replaces the derived
// data rather than duplicating it.
func (p *Pipeline) Ingest(ctx context.Context, documentID core.ID) (Result, error) {
	return p.run(ctx, documentID, &storedFile{blobs: p.blobs, extractor: p.extractor, tempDir: p.tempDir})
}

// IngestText indexes the document from text supplied by the caller instead
// of its stored file.
func (p *Pipeline) IngestText(ctx context.Context, documentID core.ID, text string) (Result, error) {
	return p.run(ctx, documentID, literalText(text))
}

// Remove deletes a document, its derived data and its stored file.
// A document being processed cannot be removed.
func (p *Pipeline) Remove(ctx context.Context, documentID core.ID) error {
	var locator string
	err := p.documents.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := p.documents.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.Status == core.StatusProcessing {
			return ErrIngestionInProgress
		}
		locator = doc.Locator
		return p.documents.DeleteDocument(ctx, documentID)
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrIngestionInProgress
		}
		return err
	}
	if locator != "" && p.blobs != nil {
		if err := p.blobs.Delete(ctx, locator); err != nil {
			p.logger.Warn("stored file not removed", "document", documentID, "locator", locator, "err", err)
		}
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, documentID core.ID, source textSource) (Result, error) {
	result := Result{DocumentID: documentID}
	start := time.Now()

	doc, err := p.claim(ctx, documentID)
	if err != nil {
		return result, err
	}
	logger := p.logger.With("document", documentID)
	logger.Info("ingestion started", "file", doc.Filename, "type", doc.FileType)

	var extracted bool
	err = p.documents.WithTransaction(ctx, func(ctx context.Context) error {
		result = Result{DocumentID: documentID}
		removed, err := p.chunks.DeleteDocumentChunks(ctx, documentID)
		if err != nil {
			return fmt.Errorf("removing previous chunks: %w", err)
		}
		if removed > 0 {
			logger.Debug("previous chunks removed", "chunks", removed)
		}

		text, err := source.text(ctx, doc)
		if err != nil {
			return err
		}
		pieces := p.chunker.Split(text)
		if p.maxChunks > 0 && len(pieces) > p.maxChunks {
			return fmt.Errorf("%w: %d chunks exceeds the limit of %d", ErrDocumentTooLarge, len(pieces), p.maxChunks)
		}
		if len(pieces) == 0 {
			extracted = false
			return p.finish(ctx, doc, core.StatusError, map[string]string{
				core.MetaLastError: ErrExtractionFailed.Error(),
			})
		}
		extracted = true

		chunks := make([]*core.Chunk, len(pieces))
		for i, piece := range pieces {
			chunks[i] = &core.Chunk{
				DocumentID: documentID,
				Index:      piece.Index,
				Content:    piece.Text,
				StartChar:  piece.StartChar,
				EndChar:    piece.EndChar,
				Length:     piece.Length,
			}
		}
		chunks, err = p.chunks.AddChunks(ctx, chunks...)
		if err != nil {
			return fmt.Errorf("storing chunks: %w", err)
		}
		result.ChunksCreated = len(chunks)

		embeddings, failed, err := p.embeddingProc.process(ctx, chunks)
		if err != nil {
			return fmt.Errorf("scheduling embeddings: %w", err)
		}
		if len(embeddings) > 0 {
			if _, err := p.chunks.SaveEmbeddings(ctx, embeddings...); err != nil {
				return fmt.Errorf("storing embeddings: %w", err)
			}
		}
		result.EmbeddingsCreated = len(embeddings)
		result.EmbeddingsFailed = failed

		return p.finish(ctx, doc, core.StatusProcessed, map[string]string{
			core.MetaChunks:      strconv.Itoa(result.ChunksCreated),
			core.MetaEmbeddings:  strconv.Itoa(result.EmbeddingsCreated),
			core.MetaEmbedFailed: strconv.Itoa(result.EmbeddingsFailed),
			core.MetaModel:       p.embedder.ModelName(),
		})
	})
	if err != nil {
		logger.Error("ingestion failed", "err", err)
		p.markFailed(context.WithoutCancel(ctx), documentID, err)
		return Result{DocumentID: documentID}, err
	}
	if !extracted {
		logger.Warn("ingestion produced no text")
		return Result{DocumentID: documentID}, ErrExtractionFailed
	}

	logger.Info("ingestion complete",
		"chunks", result.ChunksCreated,
		"embeddings", result.EmbeddingsCreated,
		"failed", result.EmbeddingsFailed,
		"elapsed", time.Since(start))
	return result, nil
}

// claim moves a document into processing in its own transaction. Two
// concurrent claims on one document conflict at commit, so at most one wins.
func (p *Pipeline) claim(ctx context.Context, documentID core.ID) (*core.Document, error) {
	var claimed *core.Document
	err := p.documents.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := p.documents.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.Status == core.StatusProcessing {
			return ErrIngestionInProgress
		}
		if !core.CanTransition(doc.Status, core.StatusProcessing) {
			return fmt.Errorf("%w: %s -> %s", core.ErrInvalidStatus, doc.Status, core.StatusProcessing)
		}
		doc.Status = core.StatusProcessing
		delete(doc.Metadata, core.MetaLastError)
		claimed, err = p.documents.UpdateDocument(ctx, doc)
		return err
	})
	if errors.Is(err, storage.ErrConflict) {
		return nil, ErrIngestionInProgress
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// finish writes the terminal status of a run together with its metadata.
func (p *Pipeline) finish(ctx context.Context, doc *core.Document, status core.DocumentStatus, meta map[string]string) error {
	updated := *doc
	updated.Status = status
	updated.Metadata = make(map[string]string, len(doc.Metadata)+len(meta))
	for k, v := range doc.Metadata {
		updated.Metadata[k] = v
	}
	if status == core.StatusError {
		for _, k := range []string{core.MetaChunks, core.MetaEmbeddings, core.MetaEmbedFailed, core.MetaModel} {
			delete(updated.Metadata, k)
		}
	}
	for k, v := range meta {
		updated.Metadata[k] = v
	}
	_, err := p.documents.UpdateDocument(ctx, &updated)
	return err
}

// markFailed records a run's failure after its transaction was discarded.
func (p *Pipeline) markFailed(ctx context.Context, documentID core.ID, cause error) {
	err := p.documents.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := p.documents.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.Status != core.StatusProcessing {
			return nil
		}
		return p.finish(ctx, doc, core.StatusError, map[string]string{core.MetaLastError: cause.Error()})
	})
	if err != nil {
		p.logger.Error("could not record ingestion failure", "document", documentID, "err", err)
	}
}
