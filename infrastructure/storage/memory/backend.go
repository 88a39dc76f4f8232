// Package memory provides an in-memory storage backend, useful for
// tests and single-process experiments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/narcache/domain/storage"
)

// Backend implements storage.Backend with two in-process maps.
// Promote moves the byte slice between them under one lock, so it is
// atomic. Contents are lost on process exit.
type Backend struct {
	mu       sync.RWMutex
	staged   map[string][]byte
	promoted map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		staged:   make(map[string][]byte),
		promoted: make(map[string][]byte),
	}
}

// ReadArtifact returns a reader over a promoted object.
func (b *Backend) ReadArtifact(_ context.Context, key string) (io.ReadCloser, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}

	b.mu.RLock()
	content, ok := b.promoted[key]
	b.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

// WriteStaged consumes contents into the staging map.
func (b *Backend) WriteStaged(ctx context.Context, key string, contents io.Reader) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	content, err := io.ReadAll(contents)
	if err != nil {
		return fmt.Errorf("reading staged contents: %w", err)
	}

	b.mu.Lock()
	b.staged[key] = content
	b.mu.Unlock()

	return nil
}

// Promote moves the staged object into the visible map.
func (b *Backend) Promote(_ context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	content, ok := b.staged[key]
	if !ok {
		return fmt.Errorf("promoting %s: %w", key, storage.ErrNotFound)
	}

	delete(b.staged, key)
	b.promoted[key] = content

	return nil
}

// StagedCount reports the number of staged objects. For tests.
func (b *Backend) StagedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.staged)
}
