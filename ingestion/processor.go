// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/ragline/blobstore"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/extract"
)

// textSource produces the text a document is indexed from.
// An empty result means nothing could be extracted.
type textSource interface {
	text(ctx context.Context, doc *core.Document) (string, error)
}

// TextExtractor converts a local file of a declared type into plain text.
// Unsupported types and unreadable files yield an empty string.
type TextExtractor interface {
	Extract(ctx context.Context, path, fileType string) string
}

var _ TextExtractor = (*extract.Registry)(nil)

// literalText is a source that ignores the stored file.
type literalText string

func (t literalText) text(context.Context, *core.Document) (string, error) {
	return string(t), nil
}

// storedFile downloads a document's file to a scratch directory and
// extracts its text.
type storedFile struct {
	blobs     blobstore.Store
	extractor TextExtractor
	tempDir   string
}

func (s *storedFile) text(ctx context.Context, doc *core.Document) (string, error) {
	if s.blobs == nil {
		return "", ErrBlobStoreRequired
	}

	dir, err := os.MkdirTemp(s.tempDir, "ragline-ingest-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "source."+extract.NormalizeType(doc.FileType))
	if err := s.blobs.Download(ctx, doc.Locator, local); err != nil {
		return "", fmt.Errorf("downloading %s: %w", doc.Locator, err)
	}
	return s.extractor.Extract(ctx, local, doc.FileType), nil
}
