package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MinioStore keeps objects in an S3-compatible bucket. Locators have the
// form "<bucket>/<key>".
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore connects to the endpoint and creates the bucket if missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	logger := slog.Default().With("component", "minio")
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		logger.Info("created bucket", "bucket", cfg.Bucket)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *MinioStore) objectName(locator string) (string, error) {
	name, ok := strings.CutPrefix(locator, s.bucket+"/")
	if !ok {
		return "", fmt.Errorf("%w: %w: %q", ErrStorage, ErrInvalidLocator, locator)
	}
	key, ok := cleanKey(name)
	if !ok {
		return "", fmt.Errorf("%w: %w: %q", ErrStorage, ErrInvalidLocator, locator)
	}
	return key, nil
}

// Upload puts the local file into the bucket.
func (s *MinioStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	name, ok := cleanKey(key)
	if !ok {
		return "", fmt.Errorf("%w: %w: %q", ErrStorage, ErrInvalidLocator, key)
	}
	opts := minio.PutObjectOptions{ContentType: mime.TypeByExtension(path.Ext(name))}
	if _, err := s.client.FPutObject(ctx, s.bucket, name, localPath, opts); err != nil {
		s.logger.Error("upload failed", "key", name, "err", err)
		return "", fmt.Errorf("%w: upload %s: %w", ErrStorage, name, err)
	}
	s.logger.Debug("object stored", "key", name)
	return s.bucket + "/" + name, nil
}

// Download fetches the object into localPath.
func (s *MinioStore) Download(ctx context.Context, locator, localPath string) error {
	name, err := s.objectName(locator)
	if err != nil {
		return err
	}
	if err := s.client.FGetObject(ctx, s.bucket, name, localPath, minio.GetObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("%w: %w: %s", ErrStorage, ErrNotFound, locator)
		}
		return fmt.Errorf("%w: download %s: %w", ErrStorage, locator, err)
	}
	return nil
}

// Open streams the object.
func (s *MinioStore) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	name, err := s.objectName(locator)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return obj, nil
}

// Delete removes the object.
func (s *MinioStore) Delete(ctx context.Context, locator string) error {
	name, err := s.objectName(locator)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
