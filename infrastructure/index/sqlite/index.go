package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/narcache/domain/index"
)

// Index is a SQLite-backed implementation of index.Index.
type Index struct {
	db *sql.DB
}

// New creates a SQLite index with the given configuration.
func New(cfg Config, opts ...Option) (*Index, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	i := &Index{db: db}

	if cfg.AutoMigrate {
		if err := i.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return i, nil
}

// NewFromDB creates an index from an existing database connection.
func NewFromDB(db *sql.DB) (*Index, error) {
	i := &Index{db: db}

	if err := i.migrate(); err != nil {
		return nil, err
	}

	return i, nil
}

// migrate creates the paths table if it doesn't exist.
func (i *Index) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS paths (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			registration_time INTEGER NOT NULL,
			last_accessed INTEGER,
			nar_size INTEGER NOT NULL,
			nar_hash TEXT NOT NULL,
			file_size INTEGER,
			file_hash TEXT,
			url TEXT NOT NULL,
			compression TEXT,
			deriver TEXT,
			ca TEXT,
			sigs TEXT,
			refs TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_paths_url ON paths(url);
	`

	_, err := i.db.Exec(schema)
	if err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}

	return nil
}

// Insert writes a record exactly once.
func (i *Index) Insert(ctx context.Context, record index.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if record.ID == "" {
		return index.ErrInvalidID
	}

	var fileSize sql.NullInt64
	if record.FileSize != nil {
		fileSize = sql.NullInt64{Int64: *record.FileSize, Valid: true}
	}

	var lastAccessed sql.NullInt64
	if !record.LastAccessed.IsZero() {
		lastAccessed = sql.NullInt64{Int64: record.LastAccessed.Unix(), Valid: true}
	}

	_, err := i.db.ExecContext(ctx,
		`INSERT INTO paths (id, path, registration_time, last_accessed, nar_size, nar_hash,
		                    file_size, file_hash, url, compression, deriver, ca, sigs, refs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.StorePath, record.RegistrationTime.Unix(), lastAccessed,
		record.NarSize, record.NarHash, fileSize, record.FileHash, record.URL,
		record.Compression, record.Deriver, record.CA, record.Sigs, record.Refs,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return index.ErrAlreadyExists
		}
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

	return i.scanOne(i.db.QueryRowContext(ctx,
		selectColumns+" FROM paths WHERE id = ?", id,
	))
}

// LookupByURL retrieves a record by the object url it points at.
func (i *Index) LookupByURL(ctx context.Context, url string) (index.Record, error) {
	if err := ctx.Err(); err != nil {
		return index.Record{}, err
	}

	return i.scanOne(i.db.QueryRowContext(ctx,
		selectColumns+" FROM paths WHERE url = ?", url,
	))
}

const selectColumns = `SELECT id, path, registration_time, last_accessed, nar_size, nar_hash,
	file_size, file_hash, url, compression, deriver, ca, sigs, refs`

func (i *Index) scanOne(row *sql.Row) (index.Record, error) {
	var (
		record                 index.Record
		registrationTime       int64
		lastAccessed, fileSize sql.NullInt64
		fileHash, compression  sql.NullString
		deriver, ca            sql.NullString
		sigs, refs             sql.NullString
	)

	err := row.Scan(
		&record.ID, &record.StorePath, &registrationTime, &lastAccessed,
		&record.NarSize, &record.NarHash, &fileSize, &fileHash, &record.URL,
		&compression, &deriver, &ca, &sigs, &refs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Record{}, index.ErrNotFound
	}
	if err != nil {
		return index.Record{}, err
	}

	record.RegistrationTime = time.Unix(registrationTime, 0).UTC()
	if lastAccessed.Valid {
		record.LastAccessed = time.Unix(lastAccessed.Int64, 0).UTC()
	}
	if fileSize.Valid {
		size := fileSize.Int64
		record.FileSize = &size
	}
	record.FileHash = fileHash.String
	record.Compression = compression.String
	record.Deriver = deriver.String
	record.CA = ca.String
	record.Sigs = sigs.String
	record.Refs = refs.String

	return record, nil
}

// Close closes the database connection.
func (i *Index) Close() error {
	return i.db.Close()
}

// DB returns the underlying database connection.
func (i *Index) DB() *sql.DB {
	return i.db
}

// isUniqueViolation checks if the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure Index implements index.Index
var _ index.Index = (*Index)(nil)
