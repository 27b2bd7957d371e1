// Package objectstore provides byte-level artifact storage addressed by key.
// Backends are interchangeable: a local directory tree, a Google Cloud
// Storage bucket, or any S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"groovesheet/internal/config"
)

// ErrNotFound is returned when no object exists at the requested key.
var ErrNotFound = errors.New("object not found")

// Store reads and writes opaque byte blobs by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys under the given prefix, in no guaranteed order.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open constructs the object store selected by configuration.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Objects.Backend {
	case "local":
		return NewLocal(cfg.Paths.JobsDir)
	case "gcs":
		return NewGCS(ctx, cfg.Objects.Bucket)
	case "s3":
		return NewS3(cfg.Objects.S3Endpoint, cfg.Objects.S3AccessKey, cfg.Objects.S3SecretKey, cfg.Objects.Bucket, cfg.Objects.S3UseSSL)
	default:
		return nil, fmt.Errorf("objects.backend: unsupported value %q", cfg.Objects.Backend)
	}
}

func cleanKey(key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key must not be empty")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return key, nil
}
