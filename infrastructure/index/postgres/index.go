// Package postgres provides a PostgreSQL-backed artifact index for
// deployments that share the index across several cache servers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/narcache/domain/index"
)

// Errors
var ErrConnectionFailed = errors.New("postgres: connection failed")

// Index is a PostgreSQL-backed implementation of index.Index.
type Index struct {
	pool   *pgxpool.Pool
	schema string
}

// New creates a PostgreSQL index over an existing pool.
func New(pool *pgxpool.Pool, schema string) *Index {
	if schema == "" {
		schema = "public"
	}
	return &Index{pool: pool, schema: schema}
}

// Connect opens a connection pool and returns an index over it.
func Connect(ctx context.Context, dsn, schema string) (*Index, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return New(pool, schema), nil
}

// tableName returns the fully qualified table name.
func (i *Index) tableName() string {
	return fmt.Sprintf("%s.paths", i.schema)
}

// Migrate creates the paths table if it doesn't exist.
func (i *Index) Migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			registration_time BIGINT NOT NULL,
			last_accessed BIGINT,
			nar_size BIGINT NOT NULL,
			nar_hash TEXT NOT NULL,
			file_size BIGINT,
			file_hash TEXT,
			url TEXT NOT NULL,
			compression TEXT,
			deriver TEXT,
			ca TEXT,
			sigs TEXT,
			refs TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_paths_url ON %s(url);
	`, i.tableName(), i.tableName())

	if _, err := i.pool.Exec(ctx, schema); err != nil {
		return errors.Join(ErrConnectionFailed, err)
	}

	return nil
}

// Insert writes a record exactly once.
func (i *Index) Insert(ctx context.Context, record index.Record) error {
	if record.ID == "" {
		return index.ErrInvalidID
	}

	var fileSize *int64
	if record.FileSize != nil {
		size := *record.FileSize
		fileSize = &size
	}

	var lastAccessed *int64
	if !record.LastAccessed.IsZero() {
		unix := record.LastAccessed.Unix()
		lastAccessed = &unix
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, path, registration_time, last_accessed, nar_size, nar_hash,
		                file_size, file_hash, url, compression, deriver, ca, sigs, refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, i.tableName())

	_, err := i.pool.Exec(ctx, query,
		record.ID, record.StorePath, record.RegistrationTime.Unix(), lastAccessed,
		record.NarSize, record.NarHash, fileSize, record.FileHash, record.URL,
		record.Compression, record.Deriver, record.CA, record.Sigs, record.Refs,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return index.ErrAlreadyExists
		}
		return err
	}

	return nil
}

// LookupByID retrieves a record by its id.
func (i *Index) LookupByID(ctx context.Context, id string) (index.Record, error) {
	if id == "" {
		return index.Record{}, index.ErrInvalidID
	}

	query := fmt.Sprintf("%s FROM %s WHERE id = $1", selectColumns, i.tableName())

	return i.scanOne(i.pool.QueryRow(ctx, query, id))
}

// LookupByURL retrieves a record by the object url it points at.
func (i *Index) LookupByURL(ctx context.Context, url string) (index.Record, error) {
	query := fmt.Sprintf("%s FROM %s WHERE url = $1", selectColumns, i.tableName())

	return i.scanOne(i.pool.QueryRow(ctx, query, url))
}

const selectColumns = `SELECT id, path, registration_time, last_accessed, nar_size, nar_hash,
	file_size, file_hash, url, compression, deriver, ca, sigs, refs`

func (i *Index) scanOne(row pgx.Row) (index.Record, error) {
	var (
		record                 index.Record
		registrationTime       int64
		lastAccessed, fileSize *int64
		fileHash, compression  *string
		deriver, ca            *string
		sigs, refs             *string
	)

	err := row.Scan(
		&record.ID, &record.StorePath, &registrationTime, &lastAccessed,
		&record.NarSize, &record.NarHash, &fileSize, &fileHash, &record.URL,
		&compression, &deriver, &ca, &sigs, &refs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return index.Record{}, index.ErrNotFound
	}
	if err != nil {
		return index.Record{}, err
	}

	record.RegistrationTime = time.Unix(registrationTime, 0).UTC()
	if lastAccessed != nil {
		record.LastAccessed = time.Unix(*lastAccessed, 0).UTC()
	}
	record.FileSize = fileSize
	record.FileHash = deref(fileHash)
	record.Compression = deref(compression)
	record.Deriver = deref(deriver)
	record.CA = deref(ca)
	record.Sigs = deref(sigs)
	record.Refs = deref(refs)

	return record, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Close closes the connection pool.
func (i *Index) Close() {
	i.pool.Close()
}

// Ensure Index implements index.Index
var _ index.Index = (*Index)(nil)
