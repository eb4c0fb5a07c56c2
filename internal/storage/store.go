// Package storage reads task result documents from, and writes exports to, object storage.
//
// Result documents are written by the compute service into whatever bucket the task was given,
// so BlobStore opens buckets by name on first use and keeps them open until Close.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/withObsrvr/braket-orchestrator/internal/ports"
)

// Config configures the storage backend.
type Config struct {
	Backend string // "s3" | "gcs" | "file" | "mem"

	// Bucket is the default bucket for task output and exports.
	Bucket string
	// Prefix is the key prefix within Bucket.
	Prefix string

	// S3 (also works for MinIO)
	Region   string
	Endpoint string // custom endpoint for MinIO/LocalStack

	// LocalDir is the root directory of the file backend; each bucket is a subdirectory.
	LocalDir string
}

// Backends lists the supported storage backends.
var Backends = []string{"s3", "gcs", "file", "mem"}

// BlobStore implements ports.ObjectStore over gocloud.dev/blob.
type BlobStore struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
}

var _ ports.ObjectStore = (*BlobStore)(nil)

// NewBlobStore creates a store. Buckets are opened lazily.
func NewBlobStore(cfg Config) (*BlobStore, error) {
	switch cfg.Backend {
	case "s3", "gcs", "mem":
	case "file":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for file backend")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
	return &BlobStore{cfg: cfg, buckets: make(map[string]*blob.Bucket)}, nil
}

func (s *BlobStore) bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	if name == "" {
		name = s.cfg.Bucket
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	b, err := openBucket(ctx, s.cfg, name)
	if err != nil {
		return nil, fmt.Errorf("open %s bucket %s: %w", s.cfg.Backend, name, err)
	}
	s.buckets[name] = b
	return b, nil
}

// GetObject downloads an object.
func (s *BlobStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	data, err := b.ReadAll(ctx, key)
	if IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w: %w", s.URI(bucket, key), ports.ErrObjectNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.URI(bucket, key), err)
	}
	return data, nil
}

// PutObject uploads an object, replacing any existing one.
func (s *BlobStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return err
	}

	var opts *blob.WriterOptions
	if contentType != "" {
		opts = &blob.WriterOptions{ContentType: contentType}
	}
	w, err := b.NewWriter(ctx, key, opts)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	return nil
}

// URI returns the canonical URI of an object.
func (s *BlobStore) URI(bucket, key string) string {
	if bucket == "" {
		bucket = s.cfg.Bucket
	}
	return objectURI(s.cfg, bucket, key)
}

// Close releases all open buckets.
func (s *BlobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, b := range s.buckets {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bucket %s: %w", name, err))
		}
		delete(s.buckets, name)
	}
	return errors.Join(errs...)
}

// IsNotExist reports whether err is a driver error meaning the object does not exist.
func IsNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
