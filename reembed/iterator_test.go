package reembed

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func setupTestDB(t *testing.T) (*badger.Repositories, func()) {
	repos, err := badger.NewMemoryRepositories(testDims) // in-memory
	require.NoError(t, err)

	cleanup := func() {
		repos.Close()
	}

	return repos, cleanup
}

// seedDocument stores a document in status with one chunk per content,
// embedded with a constant vector from an older model.
func seedDocument(t *testing.T, repos *badger.Repositories, status core.DocumentStatus, contents ...string) *core.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := repos.Documents.AddDocument(ctx, &core.Document{OwnerID: "alice", Filename: "doc.txt", FileType: "txt"})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = &core.Chunk{DocumentID: doc.ID, Index: i, Content: content}
	}
	if len(chunks) > 0 {
		chunks, err = repos.Chunks.AddChunks(ctx, chunks...)
		require.NoError(t, err)
		embeddings := make([]*core.Embedding, len(chunks))
		for i, chunk := range chunks {
			embeddings[i] = &core.Embedding{ChunkID: chunk.ID, Vector: []float32{0, 0, 0, 1}, Model: "old-model"}
		}
		_, err = repos.Chunks.SaveEmbeddings(ctx, embeddings...)
		require.NoError(t, err)
	}

	doc.Status = status
	doc, err = repos.Documents.UpdateDocument(ctx, doc)
	require.NoError(t, err)
	return doc
}

func TestDocumentIterator_Basic(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	var ids []core.ID
	for i := 0; i < 5; i++ {
		ids = append(ids, seedDocument(t, repos, core.StatusProcessed, "text").ID)
	}
	seedDocument(t, repos, core.StatusError, "broken")
	seedDocument(t, repos, core.StatusUploaded)

	iterator := NewDocumentIterator(repos.Documents, 2)

	var batches [][]core.ID
	err := iterator.ForEach(ctx, 0, func(docs []*core.Document) error {
		var batch []core.ID
		for _, d := range docs {
			batch = append(batch, d.ID)
		}
		batches = append(batches, batch)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, [][]core.ID{{ids[0], ids[1]}, {ids[2], ids[3]}, {ids[4]}}, batches,
		"only processed documents, in id order, in batches of two")
}

func TestDocumentIterator_AfterID(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	first := seedDocument(t, repos, core.StatusProcessed, "a")
	second := seedDocument(t, repos, core.StatusProcessed, "b")

	pending, err := NewDocumentIterator(repos.Documents, 0).Pending(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestDocumentIterator_StopsOnError(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 4; i++ {
		seedDocument(t, repos, core.StatusProcessed, "x")
	}

	boom := errors.New("boom")
	calls := 0
	err := NewDocumentIterator(repos.Documents, 1).ForEach(context.Background(), 0, func([]*core.Document) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDocumentIterator_ContextCancelled(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	seedDocument(t, repos, core.StatusProcessed, "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewDocumentIterator(repos.Documents, 1).ForEach(ctx, 0, func([]*core.Document) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
