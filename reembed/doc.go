// Package reembed rebuilds the embeddings of already ingested documents,
// typically after switching to a new embedding model.
//
// Chunks are left untouched; only their vectors are replaced. Each document
// is handled in one transaction, and progress is checkpointed after every
// document so an interrupted run can resume where it stopped. Embedding
// calls are retried with exponential backoff and vectors are normalized
// before they are stored.
package reembed
