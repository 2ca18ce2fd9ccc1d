package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrBlobStoreRequired is returned when a file operation runs on a
	// pipeline configured without object storage.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrIngestionInProgress is returned when another run already holds
	// the document in processing.
	ErrIngestionInProgress = errors.New("ingestion already in progress")

	// ErrExtractionFailed is returned when a document yields no text.
	ErrExtractionFailed = errors.New("no text could be extracted")

	// ErrDocumentTooLarge is returned when a document splits into more
	// chunks than one ingestion run may store.
	ErrDocumentTooLarge = errors.New("document too large")
)
