package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps objects as files below a root directory. Locators are
// keys relative to the root.
type FileStore struct {
	root   string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return &FileStore{
		root:   abs,
		logger: slog.Default().With("component", "filestore"),
	}, nil
}

// Root returns the absolute root directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) resolve(locator string) (string, error) {
	key, ok := cleanKey(locator)
	if !ok {
		return "", fmt.Errorf("%w: %w: %q", ErrStorage, ErrInvalidLocator, locator)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Upload copies localPath into the store.
func (s *FileStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	dest, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := copyFile(localPath, dest); err != nil {
		return "", fmt.Errorf("%w: upload %s: %w", ErrStorage, key, err)
	}
	s.logger.Debug("object stored", "key", key)
	locator, _ := cleanKey(key)
	return locator, nil
}

// Download copies the object to localPath.
func (s *FileStore) Download(ctx context.Context, locator, localPath string) error {
	src, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := copyFile(src, localPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w: %s", ErrStorage, ErrNotFound, locator)
		}
		return fmt.Errorf("%w: download %s: %w", ErrStorage, locator, err)
	}
	return nil
}

// Open streams the object.
func (s *FileStore) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	src, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w: %s", ErrStorage, ErrNotFound, locator)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return f, nil
}

// Delete removes the object.
func (s *FileStore) Delete(ctx context.Context, locator string) error {
	target, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
