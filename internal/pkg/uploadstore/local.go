package uploadstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2/log"
)

// LocalStore keeps staged uploads on the local filesystem. It is the default
// driver for single-node deployments; Stage is free because the blob already
// is a local file.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "./storage/uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, filepath.Base(key))
}

// Save streams r to disk, enforcing the size cap incrementally. On any
// failure the partial file is removed.
func (s *LocalStore) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	dest := s.path(key)
	file, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create upload %s: %w", dest, err)
	}

	written, err := copyCapped(file, r)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			log.Warnf("[UploadStore] Failed to remove partial upload %s: %v", dest, rmErr)
		}
		return written, err
	}
	return written, nil
}

// Stage returns the blob's path directly; the cleanup func is a no-op since
// nothing was copied.
func (s *LocalStore) Stage(ctx context.Context, key string) (string, func(), error) {
	dest := s.path(key)
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("stat upload %s: %w", dest, err)
	}
	return dest, func() {}, nil
}

// Remove deletes the blob, tolerating it being gone already.
func (s *LocalStore) Remove(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload %s: %w", key, err)
	}
	return nil
}
