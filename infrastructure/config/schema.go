// Package config provides configuration loading and parsing for the
// cache server.
package config

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrConfigNotFound    = errors.New("config: file not found")
	ErrInvalidFormat     = errors.New("config: invalid format")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrValidationFailed  = errors.New("config: validation failed")
	ErrMissingEnvVar     = errors.New("config: missing environment variable")
)

// Config is the full server configuration.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen" json:"listen"`

	// Priority is the cache priority advertised to clients. Lower
	// numbers win.
	Priority int `yaml:"priority" json:"priority"`

	// MaxUploadBytes caps the size of a single artifact upload. Zero
	// means no limit.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" json:"max_upload_bytes"`

	// TrustedKeys lists public keys in "name:base64" form. When
	// non-empty, uploaded metadata must carry a valid signature by one
	// of them.
	TrustedKeys []string `yaml:"trusted_keys" json:"trusted_keys"`

	Log   LogConfig   `yaml:"log" json:"log"`
	Store StoreConfig `yaml:"store" json:"store"`
	Index IndexConfig `yaml:"index" json:"index"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string `yaml:"level" json:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format" json:"format"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Backend is "filesystem" or "s3".
	Backend string `yaml:"backend" json:"backend"`

	Filesystem FilesystemConfig `yaml:"filesystem" json:"filesystem"`
	S3         S3Config         `yaml:"s3" json:"s3"`
}

// FilesystemConfig configures the local filesystem backend.
type FilesystemConfig struct {
	// Dir is the cache root; staging and data directories are created
	// beneath it.
	Dir string `yaml:"dir" json:"dir"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	SessionToken    string `yaml:"session_token" json:"session_token"`
}

// IndexConfig selects and configures the artifact index.
type IndexConfig struct {
	// Driver is "sqlite", "postgres", "badger" or "memory".
	Driver string `yaml:"driver" json:"driver"`

	SQLite   SQLiteConfig   `yaml:"sqlite" json:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Badger   BadgerConfig   `yaml:"badger" json:"badger"`
}

// SQLiteConfig configures the SQLite index.
type SQLiteConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// PostgresConfig configures the PostgreSQL index.
type PostgresConfig struct {
	DSN    string `yaml:"dsn" json:"dsn"`
	Schema string `yaml:"schema" json:"schema"`
}

// BadgerConfig configures the BadgerDB index.
type BadgerConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// Default returns the configuration used when a field is absent.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Priority: 40,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend: "filesystem",
			Filesystem: FilesystemConfig{
				Dir: "./cache",
			},
		},
		Index: IndexConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				DSN: "file:narcache.db?cache=shared&mode=rwc",
			},
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is required", ErrValidationFailed)
	}

	switch c.Store.Backend {
	case "filesystem":
		if c.Store.Filesystem.Dir == "" {
			return fmt.Errorf("%w: store.filesystem.dir is required", ErrValidationFailed)
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("%w: store.s3.bucket is required", ErrValidationFailed)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrValidationFailed, c.Store.Backend)
	}

	switch c.Index.Driver {
	case "sqlite":
		if c.Index.SQLite.DSN == "" {
			return fmt.Errorf("%w: index.sqlite.dsn is required", ErrValidationFailed)
		}
	case "postgres":
		if c.Index.Postgres.DSN == "" {
			return fmt.Errorf("%w: index.postgres.dsn is required", ErrValidationFailed)
		}
	case "badger":
		if c.Index.Badger.Dir == "" {
			return fmt.Errorf("%w: index.badger.dir is required", ErrValidationFailed)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown index driver %q", ErrValidationFailed, c.Index.Driver)
	}

	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("%w: max_upload_bytes must not be negative", ErrValidationFailed)
	}

	return nil
}
