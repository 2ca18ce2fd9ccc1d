package reembed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unnormalized returns {1, 2, 2, 0} for every text; magnitude 3.
func unnormalized() *mock.MockEmbedder {
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	embedder.Model = "new-model"
	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return []float32{1, 2, 2, 0}, nil
	}
	return embedder
}

func TestBatchProcessor_Process(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, repos, core.StatusProcessed, "first", "second")
	processor := NewBatchProcessor(repos.Documents, repos.Chunks, unnormalized(), 3, 10*time.Millisecond)

	n, err := processor.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	for _, chunk := range chunks {
		emb, err := repos.Chunks.GetEmbedding(ctx, chunk.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-model", emb.Model)
		assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3, 0}, emb.Vector, 1e-6, "vectors are normalized")
	}

	updated, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, updated.Status)
	assert.Equal(t, "new-model", updated.Metadata[core.MetaModel])
	assert.Equal(t, "2", updated.Metadata[core.MetaEmbeddings])
}

func TestBatchProcessor_RetriesTransientFailures(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	doc := seedDocument(t, repos, core.StatusProcessed, "only")

	var calls atomic.Int32
	embedder := unnormalized()
	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("temporary failure")
		}
		return []float32{1, 0, 0, 0}, nil
	}

	n, err := NewBatchProcessor(repos.Documents, repos.Chunks, embedder, 3, time.Millisecond).Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBatchProcessor_FailureLeavesDocumentUnchanged(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	doc := seedDocument(t, repos, core.StatusProcessed, "good", "bad")

	embedder := unnormalized()
	embedder.EmbedTextFunc = nil
	embedder.FailOn("bad")

	_, err := NewBatchProcessor(repos.Documents, repos.Chunks, embedder, 2, time.Millisecond).Process(ctx, doc.ID)
	require.Error(t, err)

	chunks, err := repos.Chunks.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	for _, chunk := range chunks {
		emb, err := repos.Chunks.GetEmbedding(ctx, chunk.ID)
		require.NoError(t, err)
		assert.Equal(t, "old-model", emb.Model, "no embedding of the document changes")
	}
}

func TestBatchProcessor_SkipsDocumentsNoLongerProcessed(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	doc := seedDocument(t, repos, core.StatusError, "x")

	embedder := unnormalized()
	n, err := NewBatchProcessor(repos.Documents, repos.Chunks, embedder, 1, 0).Process(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
}
