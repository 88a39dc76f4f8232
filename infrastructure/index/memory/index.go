// Package memory provides an in-memory artifact index for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/narcache/domain/index"
)

// Index implements index.Index with in-process maps. Safe for
// concurrent use.
type Index struct {
	mu    sync.RWMutex
	byID  map[string]index.Record
	byURL map[string]index.Record
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		byID:  make(map[string]index.Record),
		byURL: make(map[string]index.Record),
	}
}

// LookupByID returns the record published under id.
func (i *Index) LookupByID(_ context.Context, id string) (index.Record, error) {
	if id == "" {
		return index.Record{}, index.ErrInvalidID
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	record, ok := i.byID[id]
	if !ok {
		return index.Record{}, index.ErrNotFound
	}

	return record, nil
}

// LookupByURL returns the record whose object lives at url.
func (i *Index) LookupByURL(_ context.Context, url string) (index.Record, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	record, ok := i.byURL[url]
	if !ok {
		return index.Record{}, index.ErrNotFound
	}

	return record, nil
}

// Insert writes a record exactly once.
func (i *Index) Insert(_ context.Context, record index.Record) error {
	if record.ID == "" {
		return index.ErrInvalidID
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.byID[record.ID]; ok {
		return index.ErrAlreadyExists
	}

	i.byID[record.ID] = record
	i.byURL[record.URL] = record

	return nil
}

// Len reports the number of records. Used by tests.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.byID)
}
