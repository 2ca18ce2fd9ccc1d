package ragline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/chat"
	"github.com/poiesic/ragline/config"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/reembed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.Blob.Root = t.TempDir()
	cfg.Chunker.Size = 200
	cfg.Chunker.Overlap = 20
	cfg.Ingestion.PoolSize = 2
	return cfg
}

func openTestEngine(t *testing.T, provider ai.AIProvider) *Engine {
	t.Helper()
	engine, err := Open(context.Background(), testConfig(t), WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestNewProvider(t *testing.T) {
	t.Run("langchain", func(t *testing.T) {
		p, err := NewProvider(ai.NewConfig(ai.WithProvider(ai.ProviderLangchain)))
		require.NoError(t, err)
		assert.NotNil(t, p.Embedder())
		assert.NoError(t, p.Close())
	})

	t.Run("go-openai", func(t *testing.T) {
		p, err := NewProvider(ai.NewConfig(ai.WithProvider("GoOpenAI")))
		require.NoError(t, err)
		assert.NotNil(t, p.Generator())
		assert.NoError(t, p.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithProvider("bogus")))
		assert.ErrorIs(t, err, ai.ErrUnknownProvider)
	})
}

func TestNewBlobStore_UnknownType(t *testing.T) {
	_, err := NewBlobStore(context.Background(), config.BlobConfig{Type: "tape"})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	t.Run("invalid configuration", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Chunker.Overlap = cfg.Chunker.Size
		_, err := Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
	})

	t.Run("components are wired", func(t *testing.T) {
		engine := openTestEngine(t, mock.NewMockProvider())
		assert.NotNil(t, engine.Pipeline())
		assert.NotNil(t, engine.Searcher())
		assert.NotNil(t, engine.Chat())
		assert.NotNil(t, engine.Documents())
		assert.NotNil(t, engine.Chunks())
		assert.NotNil(t, engine.Conversations())
		assert.NotNil(t, engine.Checkpoints())
		assert.NotNil(t, engine.BlobStore())
		assert.Equal(t, 5, engine.Config().Search.TopK)
	})

	t.Run("close releases the provider", func(t *testing.T) {
		provider := mock.NewMockProvider()
		engine, err := Open(context.Background(), testConfig(t), WithProvider(provider))
		require.NoError(t, err)
		require.NoError(t, engine.Close())
		assert.True(t, provider.(*mock.MockProvider).Closed())
	})

	t.Run("persistent storage reopens", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.InMemory = false
		cfg.Storage.Path = filepath.Join(t.TempDir(), "db")

		engine, err := Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		doc, err := engine.Documents().AddDocument(context.Background(), &core.Document{OwnerID: "alice", Filename: "a.txt", FileType: "txt"})
		require.NoError(t, err)
		require.NoError(t, engine.Close())

		engine, err = Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer engine.Close()
		_, err = engine.Documents().GetDocument(context.Background(), doc.ID)
		assert.NoError(t, err)
	})
}

func TestEngine_EndToEnd(t *testing.T) {
	generator := mock.NewMockGenerator("Two", " weeks.")
	engine := openTestEngine(t, mock.NewMockProviderWithServices(mock.NewMockEmbedder(), generator))
	ctx := context.Background()

	text := "Vacation policy. Employees must request vacation two weeks in advance."
	src := filepath.Join(t.TempDir(), "policy.md")
	require.NoError(t, os.WriteFile(src, []byte(text), 0o644))

	doc, err := engine.Pipeline().Register(ctx, "alice", "policy.md", "md", src)
	require.NoError(t, err)
	result, err := engine.Pipeline().Ingest(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksCreated)
	assert.Equal(t, 1, result.EmbeddingsCreated)

	hits, err := engine.Searcher().Search(ctx, text, "alice", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "policy.md", hits[0].DocumentName)

	var tokens string
	var done chat.Event
	for ev := range engine.Chat().Chat(ctx, chat.Request{UserID: "alice", Message: text, UseRetrieval: true, Temperature: 0.7}) {
		if ev.Type == chat.EventToken {
			tokens += ev.Token
			continue
		}
		done = ev
	}
	require.Equal(t, chat.EventDone, done.Type, "err: %v", done.Err)
	assert.Equal(t, "Two weeks.", tokens)

	calls := generator.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Options.SystemPrompt, "[Document: policy.md]")

	// bob has no documents and gets the refusal
	for ev := range engine.Chat().Chat(ctx, chat.Request{UserID: "bob", Message: text, UseRetrieval: true}) {
		if ev.Type == chat.EventToken {
			assert.Equal(t, engine.Chat().RefusalMessage(), ev.Token)
		}
	}

	r, err := engine.NewReembedder(&reembed.Config{BatchSize: 10, ReportInterval: 1, MaxRetries: 1}, nil)
	require.NoError(t, err)
	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)

	n, err := engine.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
