// Package filesystem provides the local filesystem storage backend.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/narcache/domain/storage"
)

// Backend implements storage.Backend on the local filesystem. Staged
// objects live under a staging directory, promoted objects under a
// data directory, both addressed by the same relative key.
//
// Promote is a single os.Rename within one filesystem: atomic, and
// crash-safe once the rename has returned. Readers never observe a
// half-promoted object.
type Backend struct {
	stagingDir string
	dataDir    string
}

// New creates a filesystem backend rooted at the two directories,
// creating them if needed.
func New(stagingDir, dataDir string) (*Backend, error) {
	for _, dir := range []string{stagingDir, dataDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating backend directory: %w", err)
		}
	}
	return &Backend{stagingDir: stagingDir, dataDir: dataDir}, nil
}

// NewInDir creates a filesystem backend with conventional "staging"
// and "data" subdirectories of root.
func NewInDir(root string) (*Backend, error) {
	return New(filepath.Join(root, "staging"), filepath.Join(root, "data"))
}

// ReadArtifact opens a promoted object for reading.
func (b *Backend) ReadArtifact(_ context.Context, key string) (io.ReadCloser, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(b.dataDir, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("opening artifact %s: %w", key, err)
	}

	return file, nil
}

// WriteStaged streams contents into the staging location for key. The
// file is synced before the write is reported durable. The context is
// checked up front only; a write in flight runs to completion.
func (b *Backend) WriteStaged(ctx context.Context, key string, contents io.Reader) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(b.stagingDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating staged file: %w", err)
	}

	if _, err := io.Copy(file, contents); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("writing staged file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("syncing staged file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing staged file: %w", err)
	}

	return nil
}

// Promote renames the staged object into the data directory. The
// rename either fully happens or not at all; there is no window in
// which the object is visible but incomplete.
func (b *Backend) Promote(_ context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	staged := filepath.Join(b.stagingDir, filepath.FromSlash(key))
	final := filepath.Join(b.dataDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.Rename(staged, final); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("promoting %s: %w", key, storage.ErrNotFound)
		}
		return fmt.Errorf("promoting %s: %w", key, err)
	}

	return nil
}
