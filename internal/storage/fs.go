package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cesargomez89/etude/internal/constants"
)

// FSStore keeps each bucket as a directory under Root.
type FSStore struct {
	Root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := EnsureDir(root); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FSStore{Root: root}, nil
}

func (s *FSStore) path(bucket, key string) (string, error) {
	if err := ValidateKey(bucket); err != nil {
		return "", err
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, bucket, filepath.FromSlash(key)), nil
}

func (s *FSStore) Put(ctx context.Context, bucket, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}

	// Write beside the target and rename so readers never see a partial object
	tmp := dst + ".part"
	if err := WriteFile(tmp, data); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := MoveFile(tmp, dst); err != nil {
		_ = RemoveFile(tmp)
		return err
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if IsNotExist(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := RemoveFile(p); err != nil && !IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	_ = DeleteFolderIfEmpty(filepath.Dir(p))
	return nil
}

func (s *FSStore) EnsureBucket(_ context.Context, bucket string) error {
	if err := ValidateKey(bucket); err != nil {
		return err
	}
	return EnsureDir(filepath.Join(s.Root, bucket))
}

func (s *FSStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	info, err := os.Stat(filepath.Join(s.Root, bucket))
	if IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, constants.DirPermissions)
}

func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}

func WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, constants.FilePermissions)
}

func RemoveFile(path string) error {
	return os.Remove(path)
}

func DeleteFolderIfEmpty(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) == 0 {
		return os.Remove(dirPath)
	}
	return nil
}

func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
