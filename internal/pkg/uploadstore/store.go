package uploadstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ManuelReschke/CatalogFox/internal/pkg/config"
)

// MaxUploadBytes caps a single staged CSV at 200MB. The cap is enforced
// while streaming, so an oversized upload is rejected as soon as the running
// byte count crosses it, not after buffering the whole file.
const MaxUploadBytes = 200 << 20

// MaxUploadMB is the cap in megabytes, for user-facing messages.
const MaxUploadMB = 200

var (
	// ErrTooLarge is returned by Save when the stream exceeds MaxUploadBytes.
	// Any partially written blob has been removed.
	ErrTooLarge = errors.New("upload exceeds maximum size")

	// ErrNotFound is returned by Stage when the blob no longer exists.
	ErrNotFound = errors.New("upload not found")
)

// Store stages uploaded CSV bytes between the HTTP submission path and the
// background import worker. Keys are opaque names chosen by the caller.
type Store interface {
	// Save streams r into the blob named key and returns the byte count.
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	// Stage makes the blob available as a local file for the CSV reader and
	// returns its path plus a cleanup func for any staging copy.
	Stage(ctx context.Context, key string) (string, func(), error)
	// Remove deletes the blob. Removing an already-gone blob is not an error.
	Remove(ctx context.Context, key string) error
}

// New builds the store selected by the configuration.
func New(cfg config.UploadConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.Dir)
	case "s3":
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// copyCapped copies r to w and fails with ErrTooLarge once more than
// MaxUploadBytes have been read.
func copyCapped(w io.Writer, r io.Reader) (int64, error) {
	written, err := io.Copy(w, io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return written, err
	}
	if written > MaxUploadBytes {
		return written, ErrTooLarge
	}
	return written, nil
}
