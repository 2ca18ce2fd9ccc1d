// Package blobstore keeps uploaded documents in object storage and hands
// them back to the ingestion pipeline as local files.
package blobstore

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Store uploads and downloads opaque objects addressed by locator.
type Store interface {
	// Upload copies the local file into the store under key and returns
	// the locator to persist.
	Upload(ctx context.Context, localPath, key string) (string, error)

	// Download copies the object at locator to localPath.
	Download(ctx context.Context, locator, localPath string) error

	// Open streams the object at locator.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)

	// Delete removes the object at locator. Missing objects are not an error.
	Delete(ctx context.Context, locator string) error
}

// NewKey builds a collision-free object key for an owner's upload.
// Format: owner/<uuid>.<fileType>
func NewKey(owner, fileType string) string {
	key := sanitizeSegment(owner) + "/" + uuid.NewString()
	if ext := sanitizeSegment(strings.TrimPrefix(fileType, ".")); ext != "" && ext != "_" {
		key += "." + strings.ToLower(ext)
	}
	return key
}

// sanitizeSegment keeps a key segment free of separators.
func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// cleanKey normalises a key and rejects keys leaving the store root.
func cleanKey(key string) (string, bool) {
	if key == "" || strings.ContainsRune(key, 0) || strings.Contains(key, `\`) {
		return "", false
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", false
	}
	return cleaned, true
}
