package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/blobstore"
	"github.com/poiesic/ragline/chat"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/extract"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/search"
	"github.com/poiesic/ragline/storage"
)

var (
	// ErrEngineRequired is returned when New is called without an engine.
	ErrEngineRequired = errors.New("engine required")

	// ErrUserRequired is returned for anonymous calls to owner-scoped routes.
	ErrUserRequired = errors.New("X-User-ID header required")
)

// statusFor maps a domain error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrIngestionInProgress), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ingestion.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingestion.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, core.ErrEmptyOwner),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrInvalidRequest),
		errors.Is(err, storage.ErrInvalidQuery),
		errors.Is(err, extract.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserRequired), errors.Is(err, chat.ErrAnonymous):
		return http.StatusUnauthorized
	case errors.Is(err, ai.ErrEmbeddingFailed),
		errors.Is(err, ai.ErrGenerationFailed),
		errors.Is(err, search.ErrQueryEmbedding):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]any{"error": err.Error()})
}
