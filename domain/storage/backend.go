// Package storage defines the artifact storage backend contract.
// Implementations are in infrastructure.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Backend is an abstract artifact store with staged-write/promote
// semantics. An object written with WriteStaged is invisible to
// ReadArtifact until Promote moves it into the visible namespace under
// the same key.
//
// The atomicity of Promote differs per implementation and is
// documented on each one. Backends hold no mutable state after
// construction and are safe for concurrent use.
type Backend interface {
	// ReadArtifact returns the content of a previously promoted
	// object as a forward-only stream. It returns ErrNotFound when no
	// promoted object exists at key. It never returns staged bytes.
	//
	// ReadArtifact does not consult the artifact index; callers that
	// need a distinguishable not-found before streaming begins check
	// the index first.
	ReadArtifact(ctx context.Context, key string) (io.ReadCloser, error)

	// WriteStaged fully consumes contents and durably stores it at the
	// staging location addressed by key, creating any intermediate
	// structure.
	WriteStaged(ctx context.Context, key string, contents io.Reader) error

	// Promote moves the staged object at key into the visible
	// namespace under the same key.
	Promote(ctx context.Context, key string) error
}

// Domain errors for storage backends.
var (
	// ErrNotFound indicates no promoted object exists at the key. A
	// normal outcome, not a failure.
	ErrNotFound = errors.New("storage: artifact not found")

	// ErrInvalidKey indicates a key that could escape the backend's
	// namespace.
	ErrInvalidKey = errors.New("storage: invalid artifact key")
)

// ValidateKey rejects keys that are empty, absolute, or contain dot or
// dot-dot path elements. Keys are forward-slash separated regardless
// of backend.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}
	for _, element := range strings.Split(key, "/") {
		if element == "" || element == "." || element == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
