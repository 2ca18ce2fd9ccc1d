package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/poiesic/ragline"
	"github.com/poiesic/ragline/ai/mock"
	"github.com/poiesic/ragline/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handbook = "Vacation policy. Employees receive twenty days of paid vacation per year. " +
	"Unused days roll over once. Requests go to the team lead at least two weeks ahead."

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.Blob.Root = t.TempDir()
	cfg.Chunker.Size = 80
	cfg.Chunker.Overlap = 10
	cfg.Ingestion.PoolSize = 2
	cfg.Server.RateLimitPerMinute = 0
	return cfg
}

func setupServer(t *testing.T, cfg *config.Config) (*Server, *ragline.Engine) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	engine, err := ragline.Open(context.Background(), cfg, ragline.WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	srv, err := New(engine)
	require.NoError(t, err)
	return srv, engine
}

func do(t *testing.T, srv *Server, method, path, user string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, srv *Server, user, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return do(t, srv, http.MethodPost, "/api/v1/documents", user, buf.Bytes(), w.FormDataContentType())
}

func postChat(t *testing.T, srv *Server, user string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return do(t, srv, http.MethodPost, "/api/v1/chat", user, data, "application/json")
}

type sseEvent struct {
	name string
	data map[string]any
}

func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data))
			}
		}
		events = append(events, ev)
	}
	return events
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEngineRequired)
}

func TestHealth(t *testing.T) {
	srv, _ := setupServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "mock-embed", body["embedding_model"])
}

func TestOwnedRoutesRequireUser(t *testing.T) {
	srv, _ := setupServer(t, nil)

	for _, path := range []string{"/api/v1/documents", "/api/v1/conversations", "/api/v1/conversations/1/messages"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, path, "", nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, decode[map[string]any](t, rec), "error")
		})
	}
}

func TestDocumentLifecycle(t *testing.T) {
	srv, _ := setupServer(t, nil)

	rec := upload(t, srv, "alice", "handbook.txt", handbook, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[documentView](t, rec)
	assert.Equal(t, "handbook.txt", doc.Filename)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, "uploaded", doc.Status)
	assert.EqualValues(t, len(handbook), doc.Size)

	docPath := fmt.Sprintf("/api/v1/documents/%d", doc.ID)

	rec = do(t, srv, http.MethodPost, docPath+"/ingest", "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot ingest")

	rec = do(t, srv, http.MethodPost, docPath+"/ingest", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[ingestView](t, rec)
	assert.Equal(t, doc.ID, result.DocumentID)
	assert.Greater(t, result.ChunksCreated, 1)
	assert.Equal(t, result.ChunksCreated, result.EmbeddingsCreated)
	assert.Equal(t, "processed", result.Status)

	rec = do(t, srv, http.MethodGet, docPath, "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processed", decode[documentView](t, rec).Status)

	rec = do(t, srv, http.MethodGet, "/api/v1/documents", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]documentView](t, rec), 1)

	rec = do(t, srv, http.MethodGet, "/api/v1/documents", "bob", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]documentView](t, rec))

	rec = do(t, srv, http.MethodDelete, docPath, "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, docPath, "alice", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, docPath, "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_IngestImmediately(t *testing.T) {
	srv, _ := setupServer(t, nil)

	rec := upload(t, srv, "alice", "notes", handbook, map[string]string{"file_type": "md", "ingest": "true"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[documentView](t, rec)
	assert.Equal(t, "md", doc.FileType)
	assert.Equal(t, "processed", doc.Status)
}

func TestUpload_Rejections(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		srv, _ := setupServer(t, nil)
		rec := upload(t, srv, "alice", "archive.bin", "data", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		srv, _ := setupServer(t, nil)
		rec := do(t, srv, http.MethodPost, "/api/v1/documents", "alice", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Server.MaxUploadBytes = 64
		srv, _ := setupServer(t, cfg)
		rec := upload(t, srv, "alice", "handbook.txt", strings.Repeat(handbook, 4), nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestIngest_EmptyFileIsUnprocessable(t *testing.T) {
	srv, engine := setupServer(t, nil)

	rec := upload(t, srv, "alice", "blank.txt", "   \n", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decode[documentView](t, rec)

	rec = do(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/documents/%d/ingest", doc.ID), "alice", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	stored, err := engine.Documents().GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "error", string(stored.Status))
}

func TestIngest_DocumentTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.MaxChunks = 1
	srv, engine := setupServer(t, cfg)

	rec := upload(t, srv, "alice", "handbook.txt", handbook, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decode[documentView](t, rec)

	rec = do(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/documents/%d/ingest", doc.ID), "alice", nil, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "document too large")

	stored, err := engine.Documents().GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "error", string(stored.Status))
	assert.Contains(t, stored.Metadata["error"], "exceeds the limit of 1")
}

func TestIngest_InvalidID(t *testing.T) {
	srv, _ := setupServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/documents/abc/ingest", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/v1/documents/999/ingest", "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_StreamsAndPersists(t *testing.T) {
	srv, _ := setupServer(t, nil)

	rec := postChat(t, srv, "alice", map[string]any{"message": "hello", "use_rag": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseEvents(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "token", events[0].name)
	assert.Equal(t, "mock", events[0].data["token"])
	assert.Equal(t, " answer", events[1].data["token"])
	assert.Equal(t, "done", events[2].name)
	convID := events[2].data["conversation_id"].(float64)
	assert.NotZero(t, convID)
	assert.NotZero(t, events[2].data["message_id"])

	rec = do(t, srv, http.MethodGet, "/api/v1/conversations", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	convs := decode[[]conversationView](t, rec)
	require.Len(t, convs, 1)
	assert.EqualValues(t, convID, convs[0].ID)

	messagesPath := fmt.Sprintf("/api/v1/conversations/%d/messages", int(convID))
	rec = do(t, srv, http.MethodGet, messagesPath, "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]map[string]any](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[0]["role"])
	assert.Equal(t, "mock answer", msgs[0]["content"])
	assert.Equal(t, "user", msgs[1]["role"])

	rec = do(t, srv, http.MethodGet, messagesPath+"?limit=1", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, srv, http.MethodGet, messagesPath+"?limit=x", "alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, messagesPath, "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_RefusesWithoutDocuments(t *testing.T) {
	srv, engine := setupServer(t, nil)

	rec := postChat(t, srv, "alice", map[string]any{"message": "what is the vacation policy?"})
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, engine.Chat().RefusalMessage(), events[0].data["token"])
	assert.Equal(t, "done", events[1].name)
}

func TestChat_Anonymous(t *testing.T) {
	srv, _ := setupServer(t, nil)

	rec := postChat(t, srv, "", map[string]any{"message": "hello", "use_rag": false})
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseEvents(t, rec.Body.String())
	last := events[len(events)-1]
	assert.Equal(t, "done", last.name)
	assert.EqualValues(t, 0, last.data["conversation_id"])
	assert.EqualValues(t, 0, last.data["message_id"])
}

func TestChat_InvalidRequests(t *testing.T) {
	srv, _ := setupServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty message", map[string]any{"message": "  "}},
		{"temperature out of range", map[string]any{"message": "hi", "temperature": 3.5}},
		{"negative max tokens", map[string]any{"message": "hi", "max_tokens": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(t, srv, "alice", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[map[string]any](t, rec), "error")
		})
	}

	rec := do(t, srv, http.MethodPost, "/api/v1/chat", "alice", []byte("{not json"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimitPerMinute = 2
	srv, _ := setupServer(t, cfg)

	for range 2 {
		rec := do(t, srv, http.MethodGet, "/health", "alice", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/health", "alice", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, srv, http.MethodGet, "/health", "bob", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per caller")
}
