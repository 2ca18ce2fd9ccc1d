package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/blobstore"
	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
	"github.com/poiesic/ragline/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 16

var testText = strings.Repeat("The quick brown fox jumps over the lazy dog. ", 12) +
	"\n" + strings.Repeat("Pack my box with five dozen liquor jugs. ", 8)

// numberedText returns text whose chunks never repeat.
func numberedText(sentences int) string {
	var b strings.Builder
	for i := range sentences {
		fmt.Fprintf(&b, "Entry %d of the ledger records shipment %d. ", i, i*7+3)
	}
	return b.String()
}

func setupPipeline(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) (*Pipeline, *badger.Repositories) {
	t.Helper()
	repos, err := badger.NewMemoryRepositories(testDims)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	c, err := chunker.New(120, 20)
	require.NoError(t, err)

	opts = append([]Option{WithChunker(c), WithPoolSize(4)}, opts...)
	p, err := NewPipeline(repos.Documents, repos.Chunks, embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p, repos
}

func addDocument(t *testing.T, repos *badger.Repositories, owner string) *core.Document {
	t.Helper()
	doc, err := repos.Documents.AddDocument(context.Background(), &core.Document{
		OwnerID:  owner,
		Filename: "notes.txt",
		FileType: "txt",
		Status:   core.StatusUploaded,
	})
	require.NoError(t, err)
	return doc
}

func pieces(t *testing.T, text string) []chunker.Piece {
	t.Helper()
	c, err := chunker.New(120, 20)
	require.NoError(t, err)
	return c.Split(text)
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	repos, err := badger.NewMemoryRepositories(testDims)
	require.NoError(t, err)
	defer repos.Close()
	embedder := mock.NewMockEmbedderWithDimensions(testDims)

	_, err = NewPipeline(nil, repos.Chunks, embedder)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewPipeline(repos.Documents, nil, embedder)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewPipeline(repos.Documents, repos.Chunks, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestIngestText(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	p, repos := setupPipeline(t, embedder)
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")
	expected := pieces(t, testText)
	require.Greater(t, len(expected), 2)

	result, err := p.IngestText(ctx, doc.ID, testText)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, result.DocumentID)
	assert.Equal(t, len(expected), result.ChunksCreated)
	assert.Equal(t, len(expected), result.EmbeddingsCreated)
	assert.Zero(t, result.EmbeddingsFailed)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, stored.Status)
	assert.Equal(t, "mock-embed", stored.Metadata[core.MetaModel])
	assert.Equal(t, "0", stored.Metadata[core.MetaEmbedFailed])

	chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, len(expected))
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, expected[i].Text, chunk.Content)
		assert.True(t, chunk.HasEmbedding())
	}
}

func TestIngestText_EmbeddingFailuresAreIsolated(t *testing.T) {
	text := numberedText(40)
	expected := pieces(t, text)
	require.Greater(t, len(expected), 3)
	seen := make(map[string]bool, len(expected))
	for _, piece := range expected {
		require.False(t, seen[piece.Text], "chunks must be distinct")
		seen[piece.Text] = true
	}

	embedder := mock.NewMockEmbedderWithDimensions(testDims).FailOn(expected[1].Text)
	p, repos := setupPipeline(t, embedder)
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")

	result, err := p.IngestText(ctx, doc.ID, text)
	require.NoError(t, err)
	assert.Equal(t, len(expected), result.ChunksCreated)
	assert.Equal(t, len(expected)-1, result.EmbeddingsCreated)
	assert.Equal(t, 1, result.EmbeddingsFailed)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, stored.Status)
	assert.Equal(t, "1", stored.Metadata[core.MetaEmbedFailed])

	chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, len(expected))
	for i, chunk := range chunks {
		assert.Equal(t, i != 1, chunk.HasEmbedding(), "chunk %d", i)
	}

	count, err := repos.Chunks.CountEmbeddings(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, len(expected)-1, count)
}

func TestIngestText_LargeDocument(t *testing.T) {
	const dims, maxChunks = 1536, 700
	repos, err := badger.NewMemoryRepositories(dims, badger.WithIngestCapacity(dims, 1000, maxChunks))
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	p, err := NewPipeline(repos.Documents, repos.Chunks, mock.NewMockEmbedderWithDimensions(dims),
		WithChunker(chunker.Default()), WithPoolSize(4), WithMaxChunks(maxChunks))
	require.NoError(t, err)
	t.Cleanup(p.Release)
	ctx := context.Background()

	// roughly 490,000 characters
	text := strings.Repeat("The quick brown fox jumps over the lazy dog and runs away again. ", 7500)
	expected := chunker.Default().Split(text)
	require.Greater(t, len(expected), 600)
	require.LessOrEqual(t, len(expected), maxChunks)

	doc := addDocument(t, repos, "alice")
	result, err := p.IngestText(ctx, doc.ID, text)
	require.NoError(t, err)
	assert.Equal(t, len(expected), result.ChunksCreated)
	assert.Equal(t, len(expected), result.EmbeddingsCreated)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, stored.Status)

	count, err := repos.Chunks.CountEmbeddings(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, len(expected), count)

	t.Run("over the chunk limit", func(t *testing.T) {
		doc := addDocument(t, repos, "alice")
		_, err := p.IngestText(ctx, doc.ID, text+text)
		require.ErrorIs(t, err, ErrDocumentTooLarge)

		stored, err := repos.Documents.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusError, stored.Status)
		assert.Contains(t, stored.Metadata[core.MetaLastError], "exceeds the limit of 700")

		chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestIngestText_Idempotent(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	p, repos := setupPipeline(t, embedder)
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")

	first, err := p.IngestText(ctx, doc.ID, testText)
	require.NoError(t, err)
	second, err := p.IngestText(ctx, doc.ID, testText)
	require.NoError(t, err)
	assert.Equal(t, first.ChunksCreated, second.ChunksCreated)

	chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, first.ChunksCreated)

	count, err := repos.Chunks.CountEmbeddings(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ChunksCreated, count)
}

func TestIngest_RejectsDocumentInProgress(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	p, repos := setupPipeline(t, embedder)
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")

	doc.Status = core.StatusProcessing
	_, err := repos.Documents.UpdateDocument(ctx, doc)
	require.NoError(t, err)

	_, err = p.IngestText(ctx, doc.ID, testText)
	assert.ErrorIs(t, err, ErrIngestionInProgress)
	assert.Zero(t, embedder.CallCount())

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, stored.Status)
}

func TestIngest_ConcurrentRunsOnOneDocument(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		once.Do(func() { close(started) })
		<-release
		return mock.Vector(text, testDims), nil
	}
	p, repos := setupPipeline(t, embedder)
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")

	done := make(chan error, 1)
	go func() {
		_, err := p.IngestText(ctx, doc.ID, testText)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached embedding")
	}

	_, err := p.IngestText(ctx, doc.ID, testText)
	assert.ErrorIs(t, err, ErrIngestionInProgress)

	close(release)
	require.NoError(t, <-done)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, stored.Status)
}

func TestIngestText_EmptyTextIsExtractionFailure(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	p, repos := setupPipeline(t, embedder)
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")

	_, err := p.IngestText(ctx, doc.ID, testText)
	require.NoError(t, err)

	result, err := p.IngestText(ctx, doc.ID, "   \n\t ")
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Zero(t, result.ChunksCreated)
	assert.Zero(t, result.EmbeddingsCreated)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, stored.Status)
	assert.NotEmpty(t, stored.Metadata[core.MetaLastError])

	chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks, "previous chunks are removed")
}

func TestIngestText_StorageFailureRollsBack(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	p, repos := setupPipeline(t, embedder)
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")

	first, err := p.IngestText(ctx, doc.ID, testText)
	require.NoError(t, err)

	// a misconfigured embedder produces vectors the store refuses
	wrong := mock.NewMockEmbedderWithDimensions(testDims * 2)
	broken, err := NewPipeline(repos.Documents, repos.Chunks, wrong, WithPoolSize(2))
	require.NoError(t, err)
	defer broken.Release()

	_, err = broken.IngestText(ctx, doc.ID, "entirely different text")
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, stored.Status)
	assert.Contains(t, stored.Metadata[core.MetaLastError], "dimension")

	chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, first.ChunksCreated, "earlier chunks survive the failed run")
}

func TestIngest_UnknownDocument(t *testing.T) {
	p, _ := setupPipeline(t, mock.NewMockEmbedderWithDimensions(testDims))
	_, err := p.IngestText(context.Background(), 4242, testText)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegisterAndIngest(t *testing.T) {
	store, err := blobstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	p, repos := setupPipeline(t, mock.NewMockEmbedderWithDimensions(testDims), WithBlobStore(store), WithTempDir(t.TempDir()))
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte(testText), 0o644))

	doc, err := p.Register(ctx, "alice", "notes.txt", ".TXT", src)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUploaded, doc.Status)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, int64(len(testText)), doc.Size)
	assert.True(t, strings.HasPrefix(doc.Locator, "alice/"))

	result, err := p.Ingest(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, len(pieces(t, testText)), result.ChunksCreated)

	require.NoError(t, p.Remove(ctx, doc.ID))
	_, err = repos.Documents.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Open(ctx, doc.Locator)
	assert.Error(t, err, "stored file is deleted with the document")
}

func TestIngest_UnsupportedTypeFailsExtraction(t *testing.T) {
	store, err := blobstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	p, repos := setupPipeline(t, mock.NewMockEmbedderWithDimensions(testDims), WithBlobStore(store))
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(src, []byte{0x00, 0x01, 0x02}, 0o644))
	doc, err := p.Register(ctx, "alice", "image.bin", "bin", src)
	require.NoError(t, err)

	_, err = p.Ingest(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrExtractionFailed)

	stored, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, stored.Status)
}

func TestIngest_WithoutBlobStore(t *testing.T) {
	p, repos := setupPipeline(t, mock.NewMockEmbedderWithDimensions(testDims))
	doc := addDocument(t, repos, "alice")

	_, err := p.Ingest(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrBlobStoreRequired)

	_, err = p.Register(context.Background(), "alice", "a.txt", "txt", "/nonexistent")
	assert.ErrorIs(t, err, ErrBlobStoreRequired)
}

func TestRemove_RejectsDocumentInProgress(t *testing.T) {
	p, repos := setupPipeline(t, mock.NewMockEmbedderWithDimensions(testDims))
	ctx := context.Background()
	doc := addDocument(t, repos, "alice")
	doc.Status = core.StatusProcessing
	_, err := repos.Documents.UpdateDocument(ctx, doc)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Remove(ctx, doc.ID), ErrIngestionInProgress)
}

func TestRecoverStuck(t *testing.T) {
	p, repos := setupPipeline(t, mock.NewMockEmbedderWithDimensions(testDims))
	ctx := context.Background()

	stuck := addDocument(t, repos, "alice")
	stuck.Status = core.StatusProcessing
	_, err := repos.Documents.UpdateDocument(ctx, stuck)
	require.NoError(t, err)
	idle := addDocument(t, repos, "alice")

	n, err := p.RecoverStuck(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "recently claimed documents are left alone")

	time.Sleep(5 * time.Millisecond)
	n, err = p.RecoverStuck(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := repos.Documents.GetDocument(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, stored.Status)
	assert.Equal(t, interruptedMessage, stored.Metadata[core.MetaLastError])

	untouched, err := repos.Documents.GetDocument(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUploaded, untouched.Status)

	_, err = p.IngestText(ctx, stuck.ID, testText)
	assert.NoError(t, err, "a recovered document can be ingested again")
}
