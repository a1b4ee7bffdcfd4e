// Package storage holds the object store backends artifacts are written to.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is key/bucket blob storage.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	EnsureBucket(ctx context.Context, bucket string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Checksum returns the SHA-256 hex digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ObjectPath joins a bucket and key into the form stored on artifact rows.
func ObjectPath(bucket, key string) string {
	return bucket + "/" + key
}

// SplitObjectPath reverses ObjectPath.
func SplitObjectPath(path string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid storage path %q", path)
	}
	return bucket, key, nil
}

// ValidateKey rejects keys that could escape their bucket.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid object key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}
