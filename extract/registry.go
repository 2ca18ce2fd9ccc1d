package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Extractor reads a file and returns its text content.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, path string) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Registry maps declared file types to extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
	logger     *slog.Logger
}

// NewRegistry creates a registry with no extractors.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		extractors: make(map[string]Extractor),
		logger:     logger.With("component", "extract"),
	}
}

// Default creates a registry with every built-in extractor.
func Default(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(PlainText{}, "txt", "md", "markdown", "csv")
	r.Register(HTML{}, "html", "htm")
	r.Register(Docx{}, "docx", "doc")
	r.Register(Xlsx{}, "xlsx")
	r.Register(PDF{}, "pdf")
	return r
}

// Register associates an extractor with one or more file types.
func (r *Registry) Register(e Extractor, fileTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ft := range fileTypes {
		r.extractors[NormalizeType(ft)] = e
	}
}

// Supports reports whether fileType has a registered extractor.
func (r *Registry) Supports(fileType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extractors[NormalizeType(fileType)]
	return ok
}

// Types returns the registered file types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.extractors))
	for ft := range r.extractors {
		types = append(types, ft)
	}
	sort.Strings(types)
	return types
}

// ExtractE runs the extractor for fileType and reports failures.
func (r *Registry) ExtractE(ctx context.Context, path, fileType string) (string, error) {
	r.mu.RLock()
	e, ok := r.extractors[NormalizeType(fileType)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
	text, err := e.Extract(ctx, path)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Extract runs the extractor for fileType. Unknown types and extractor
// failures are logged and yield "".
func (r *Registry) Extract(ctx context.Context, path, fileType string) string {
	text, err := r.ExtractE(ctx, path, fileType)
	if err != nil {
		r.logger.Warn("text extraction failed", "path", path, "type", fileType, "err", err)
		return ""
	}
	return text
}

// NormalizeType lower-cases a file type and strips a leading dot.
func NormalizeType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}
