package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
	"gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

func openBucket(ctx context.Context, cfg Config, name string) (*blob.Bucket, error) {
	switch cfg.Backend {
	case "mem":
		return memblob.OpenBucket(nil), nil
	case "file":
		dir := filepath.Join(cfg.LocalDir, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create bucket directory %s: %w", dir, err)
		}
		return fileblob.OpenBucket(dir, nil)
	default:
		return blob.OpenBucket(ctx, bucketURL(cfg, name))
	}
}

// bucketURL builds the gocloud.dev URL for remote backends.
func bucketURL(cfg Config, name string) string {
	switch cfg.Backend {
	case "gcs":
		return fmt.Sprintf("gs://%s", name)
	default:
		bucketURL := fmt.Sprintf("s3://%s", name)

		params := url.Values{}
		if cfg.Region != "" {
			params.Set("region", cfg.Region)
		}
		if cfg.Endpoint != "" {
			params.Set("endpoint", cfg.Endpoint)
			params.Set("s3ForcePathStyle", "true")
		}
		if len(params) > 0 {
			bucketURL = bucketURL + "?" + params.Encode()
		}
		return bucketURL
	}
}

func objectURI(cfg Config, bucket, key string) string {
	switch cfg.Backend {
	case "gcs":
		return fmt.Sprintf("gs://%s/%s", bucket, key)
	case "file":
		return "file://" + filepath.ToSlash(filepath.Join(cfg.LocalDir, bucket, key))
	case "mem":
		return fmt.Sprintf("mem://%s/%s", bucket, key)
	default:
		return fmt.Sprintf("s3://%s/%s", bucket, key)
	}
}
