package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/narcache/domain/index"
)

// Key layout: "path:<id>" holds the JSON-encoded record, "url:<url>"
// holds the id it belongs to.
const (
	pathPrefix = "path:"
	urlPrefix  = "url:"
)

// Index is a BadgerDB-backed implementation of index.Index.
type Index struct {
	db *badger.DB
}

// New creates a BadgerDB index with the given configuration.
func New(cfg Config, opts ...Option) (*Index, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	return &Index{db: db}, nil
}

// Insert writes a record exactly once. The primary entry and the url
// entry are committed in one transaction.
func (i *Index) Insert(ctx context.Context, record index.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if record.ID == "" {
		return index.ErrInvalidID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = i.db.Update(func(txn *badger.Txn) error {
		key := []byte(pathPrefix + record.ID)

		_, err := txn.Get(key)
		if err == nil {
			return index.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(urlPrefix+record.URL), []byte(record.ID))
	})
	if err != nil {
		return err
	}

	return nil
}

// LookupByID retrieves a record by its id.
func (i *Index) LookupByID(ctx context.Context, id string) (index.Record, error) {
	if err := ctx.Err(); err != nil {
		return index.Record{}, err
	}

	if id == "" {
		return index.Record{}, index.ErrInvalidID
	}

	var record index.Record
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pathPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return index.ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err != nil {
		return index.Record{}, err
	}

	return record, nil
}

// LookupByURL retrieves a record via the url entry.
func (i *Index) LookupByURL(ctx context.Context, url string) (index.Record, error) {
	if err := ctx.Err(); err != nil {
		return index.Record{}, err
	}

	var id string
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(urlPrefix + url))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return index.ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(value []byte) error {
			id = string(value)
			return nil
		})
	})
	if err != nil {
		return index.Record{}, err
	}

	return i.LookupByID(ctx, id)
}

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Ensure Index implements index.Index
var _ index.Index = (*Index)(nil)
