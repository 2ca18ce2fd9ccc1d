package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/extract"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/storage"
)

type documentView struct {
	ID        core.ID           `json:"id"`
	Filename  string            `json:"filename"`
	FileType  string            `json:"file_type"`
	Size      int64             `json:"size"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func newDocumentView(doc *core.Document) documentView {
	return documentView{
		ID:        doc.ID,
		Filename:  doc.Filename,
		FileType:  doc.FileType,
		Size:      doc.Size,
		Status:    string(doc.Status),
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

type ingestView struct {
	DocumentID        core.ID `json:"document_id"`
	ChunksCreated     int     `json:"chunks_created"`
	EmbeddingsCreated int     `json:"embeddings_created"`
	EmbeddingsFailed  int     `json:"embeddings_failed"`
	Status            string  `json:"status"`
}

// uploadDocument accepts a multipart form with a "file" part and an
// optional "file_type" field. The declared type defaults to the file
// extension. With ingest=true the document is indexed before returning.
func (s *Server) uploadDocument(c echo.Context) error {
	req := c.Request()
	if limit := s.config.MaxUploadBytes; limit > 0 {
		if req.ContentLength > limit {
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]any{"error": "upload exceeds size limit"})
		}
		req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]any{"error": "upload exceeds size limit"})
		}
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "file is required"})
	}

	fileType := c.FormValue("file_type")
	if fileType == "" {
		fileType = filepath.Ext(header.Filename)
	}
	fileType = extract.NormalizeType(fileType)
	if !s.types.Supports(fileType) {
		return errorJSON(c, fmt.Errorf("%w: %q (supported: %s)",
			extract.ErrUnsupportedType, fileType, strings.Join(s.types.Types(), ", ")))
	}

	src, err := header.Open()
	if err != nil {
		return errorJSON(c, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "ragline-upload-*")
	if err != nil {
		return errorJSON(c, err)
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errorJSON(c, err)
	}

	ctx := req.Context()
	pipeline := s.engine.Pipeline()
	doc, err := pipeline.Register(ctx, userID(c), filepath.Base(header.Filename), fileType, tmp.Name())
	if err != nil {
		return errorJSON(c, err)
	}

	if ingest, _ := strconv.ParseBool(c.FormValue("ingest")); ingest {
		if _, err := pipeline.Ingest(ctx, doc.ID); err != nil {
			s.logger.Warn("ingest after upload failed", "document", doc.ID, "err", err)
		}
		if refreshed, err := s.engine.Documents().GetDocument(ctx, doc.ID); err == nil {
			doc = refreshed
		}
	}
	return c.JSON(http.StatusCreated, newDocumentView(doc))
}

func (s *Server) listDocuments(c echo.Context) error {
	docs, err := s.engine.Documents().ListDocumentsByOwner(c.Request().Context(), userID(c))
	if err != nil {
		return errorJSON(c, err)
	}
	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, newDocumentView(doc))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) getDocument(c echo.Context) error {
	doc, err := s.ownedDocument(c)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, newDocumentView(doc))
}

func (s *Server) ingestDocument(c echo.Context) error {
	doc, err := s.ownedDocument(c)
	if err != nil {
		return errorJSON(c, err)
	}

	result, err := s.engine.Pipeline().Ingest(c.Request().Context(), doc.ID)
	switch {
	case errors.Is(err, ingestion.ErrExtractionFailed), errors.Is(err, ingestion.ErrDocumentTooLarge):
		return c.JSON(statusFor(err), map[string]any{
			"error":       err.Error(),
			"document_id": doc.ID,
			"status":      string(core.StatusError),
		})
	case err != nil:
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, ingestView{
		DocumentID:        result.DocumentID,
		ChunksCreated:     result.ChunksCreated,
		EmbeddingsCreated: result.EmbeddingsCreated,
		EmbeddingsFailed:  result.EmbeddingsFailed,
		Status:            string(core.StatusProcessed),
	})
}

func (s *Server) deleteDocument(c echo.Context) error {
	doc, err := s.ownedDocument(c)
	if err != nil {
		return errorJSON(c, err)
	}
	if err := s.engine.Pipeline().Remove(c.Request().Context(), doc.ID); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ownedDocument loads the :id document. Documents of other users are
// reported as not found.
func (s *Server) ownedDocument(c echo.Context) (*core.Document, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}
	doc, err := s.engine.Documents().GetDocument(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != userID(c) {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func pathID(c echo.Context) (core.ID, error) {
	return parseID(c.Param("id"))
}

func parseID(raw string) (core.ID, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: id %q", storage.ErrInvalidQuery, raw)
	}
	return core.ID(id), nil
}
