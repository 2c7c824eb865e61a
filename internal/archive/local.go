package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore implements ObjectStore on the local filesystem.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates basePath if needed and stores objects beneath it.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Put writes data to a temp file and renames it into place.
func (l *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := l.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrPutFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPutFailed, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrPutFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrPutFailed, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrPutFailed, err)
	}
	return nil
}

func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrGetFailed, err)
	}
	return data, nil
}

// List walks the directory under prefix. Temp files from interrupted puts
// are skipped.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := filepath.Walk(l.fullPath(prefix), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Base(p)[0] == '.' {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (l *LocalStore) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}
