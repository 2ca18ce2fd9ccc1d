package reembed

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      2,
		ReportInterval: 1,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}
}

func TestNewReembedder_Validation(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	embedder := unnormalized()

	_, err := NewReembedder(nil, repos.Chunks, nil, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewReembedder(repos.Documents, nil, nil, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewReembedder(repos.Documents, repos.Chunks, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewReembedder(repos.Documents, repos.Chunks, nil, embedder, &Config{MaxRetries: 0}, nil)
	assert.ErrorIs(t, err, ai.ErrInvalidMaxAttempts)
}

func TestReembedder_Run(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedDocument(t, repos, core.StatusProcessed, "a", "b")
	}
	seedDocument(t, repos, core.StatusError, "skipped")

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Documents, repos.Chunks, repos.Checkpoints, unnormalized(), testConfig(), &buf)
	require.NoError(t, err)

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Documents: 3, Chunks: 6}, stats)

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 3 documents")
	assert.Contains(t, output, "3/3")
	assert.Contains(t, output, "Reembedding complete")

	checkpoint, err := repos.Checkpoints.LoadCheckpoint(ctx, CheckpointType)
	require.NoError(t, err)
	assert.Nil(t, checkpoint, "a completed run clears its checkpoint")
}

func TestReembedder_EmptyDatabase(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()

	var buf bytes.Buffer
	r, err := NewReembedder(repos.Documents, repos.Chunks, nil, unnormalized(), testConfig(), &buf)
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Contains(t, buf.String(), "No documents to reembed")
}

func TestReembedder_ResumesFromCheckpoint(t *testing.T) {
	repos, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first := seedDocument(t, repos, core.StatusProcessed, "one")
	seedDocument(t, repos, core.StatusProcessed, "two")
	third := seedDocument(t, repos, core.StatusProcessed, "three")

	// the first run dies on the third document
	failing := mock.NewMockEmbedderWithDimensions(testDims).FailOn("three")
	r, err := NewReembedder(repos.Documents, repos.Chunks, repos.Checkpoints, failing, testConfig(), nil)
	require.NoError(t, err)
	stats, err := r.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, stats.Documents)

	checkpoint, err := repos.Checkpoints.LoadCheckpoint(ctx, CheckpointType)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Greater(t, checkpoint.LastID, first.ID)
	assert.Less(t, checkpoint.LastID, third.ID)

	cfg := testConfig()
	cfg.Resume = true
	embedder := unnormalized()
	r, err = NewReembedder(repos.Documents, repos.Chunks, repos.Checkpoints, embedder, cfg, nil)
	require.NoError(t, err)
	stats, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents, "only the remaining document is processed")
	assert.Equal(t, []string{"three"}, embedder.Texts())
}
