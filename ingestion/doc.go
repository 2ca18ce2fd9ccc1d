// Package ingestion turns uploaded documents into searchable chunks.
//
// The Pipeline drives a document through its lifecycle:
//
//	uploaded -> processing -> processed | error
//
// A run first claims the document by moving it to processing in a short
// transaction of its own, so two concurrent runs on one document cannot both
// proceed. The rest of the run happens in a single transaction: previous
// chunks and embeddings are removed, text is extracted and split, every chunk
// is embedded concurrently on a worker pool, and the final status is written.
// Either all of that commits or none of it does.
//
// Embedding is best effort per chunk. A chunk whose embedding call fails is
// kept without a vector and the failure is counted in the result; it never
// aborts the run. Storage failures do abort it, and the document is then
// marked as error in a separate write.
package ingestion
