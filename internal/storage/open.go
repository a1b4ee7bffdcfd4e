package storage

import (
	"context"
	"fmt"

	"github.com/cesargomez89/etude/internal/config"
	"github.com/cesargomez89/etude/internal/constants"
)

// Open builds the configured backend and makes sure both buckets exist.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	var (
		store ObjectStore
		err   error
	)
	switch cfg.Backend {
	case constants.StorageBackendFS:
		store, err = NewFSStore(cfg.Dir)
	case constants.StorageBackendMemory:
		store = NewMemoryStore()
	case constants.StorageBackendMinio:
		store, err = NewMinioStore(cfg.Minio)
	case constants.StorageBackendGCS:
		store, err = NewGCSStore(ctx, cfg.GCSProjectID, cfg.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	for _, bucket := range []string{cfg.PDFBucket, cfg.DerivedBucket} {
		if err := store.EnsureBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
		}
	}
	return store, nil
}
