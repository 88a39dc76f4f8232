// Package upload coordinates the two halves of an artifact upload.
// Bytes and metadata for the same artifact arrive as independent
// requests in either order; the coordinator pairs them by storage key
// and publishes the artifact exactly once when both halves are in.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/felixgeelhaar/narcache/domain/index"
	"github.com/felixgeelhaar/narcache/domain/narinfo"
	"github.com/felixgeelhaar/narcache/domain/signature"
	"github.com/felixgeelhaar/narcache/domain/storage"
	"github.com/felixgeelhaar/narcache/infrastructure/logging"
)

// Errors
var (
	// ErrMissingURL indicates a metadata record without a URL field;
	// without it the upload cannot be paired with its bytes.
	ErrMissingURL = errors.New("upload: metadata has no url")
)

// pendingPart is one half of an upload waiting for its partner. A nil
// info means the bytes are staged and metadata is outstanding.
type pendingPart struct {
	id   string
	info *narinfo.NarInfo
}

// Coordinator pairs artifact bytes with artifact metadata and
// publishes completed artifacts. Pending halves are kept only in
// memory: a restart forgets half-finished uploads and the client
// retries both parts.
type Coordinator struct {
	backend storage.Backend
	index   index.Index
	trusted []signature.PublicKey

	// mu guards pending. The lock covers only the table transition;
	// staging writes and finalization run outside it so unrelated keys
	// never contend.
	mu      sync.Mutex
	pending map[string]pendingPart
}

// New creates a coordinator. When trusted keys are given, metadata
// must carry a signature by one of them before it is accepted.
func New(backend storage.Backend, idx index.Index, trusted []signature.PublicKey) (*Coordinator, error) {
	if backend == nil {
		return nil, errors.New("upload: storage backend is required")
	}
	if idx == nil {
		return nil, errors.New("upload: index is required")
	}

	return &Coordinator{
		backend: backend,
		index:   idx,
		trusted: trusted,
		pending: make(map[string]pendingPart),
	}, nil
}

// PutNar stages artifact bytes under key and records them as the
// bytes half of the upload. If the metadata half is already pending
// the artifact is published before PutNar returns.
func (c *Coordinator) PutNar(ctx context.Context, key string, contents io.Reader) error {
	if err := c.backend.WriteStaged(ctx, key, contents); err != nil {
		return err
	}

	logging.Debug().
		Add(logging.Key(key)).
		Msg("artifact bytes staged")

	return c.reconcile(ctx, key, pendingPart{})
}

// PutNarInfo parses, verifies and records the metadata half of the
// upload under id (the name the client published it as). If the bytes
// half is already staged the artifact is published before PutNarInfo
// returns.
func (c *Coordinator) PutNarInfo(ctx context.Context, id, text string) error {
	info, warnings, err := narinfo.Parse(text)
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		logging.Warn().
			Add(logging.RecordID(id)).
			Add(logging.Str("warning", warning)).
			Msg("metadata parse warning")
	}

	if len(c.trusted) > 0 {
		if err := info.CheckSignature(c.trusted); err != nil {
			return err
		}
	}

	if info.URL == "" {
		return ErrMissingURL
	}

	return c.reconcile(ctx, pairingKey(info.URL), pendingPart{id: id, info: info})
}

// pairingKey maps a metadata URL to the storage key the bytes were
// uploaded under. URLs conventionally carry a "nar/" prefix that the
// storage namespace does not.
func pairingKey(url string) string {
	return strings.TrimPrefix(url, "nar/")
}

// reconcile runs the per-key state transition. Exactly one caller per
// key can observe the opposite half and win finalization; the table
// lock makes the lookup and transition a single atomic step.
func (c *Coordinator) reconcile(ctx context.Context, key string, incoming pendingPart) error {
	c.mu.Lock()

	existing, ok := c.pending[key]
	if !ok || (existing.info == nil) == (incoming.info == nil) {
		// First arrival, or a same-kind retry replacing the earlier
		// part. Either way the upload stays pending.
		c.pending[key] = incoming
		c.mu.Unlock()
		return nil
	}

	// Opposite halves met: consume the pending entry.
	delete(c.pending, key)
	c.mu.Unlock()

	complete := incoming
	if complete.info == nil {
		complete = existing
	}

	return c.finalize(ctx, key, complete.id, complete.info)
}

// finalize promotes the staged bytes and writes the index record, in
// that order. The index is never written without a prior successful
// promote. The pending pair is already consumed when finalize runs: a
// failed promote leaves the artifact neither visible nor indexed, and
// the client re-uploads both halves.
func (c *Coordinator) finalize(ctx context.Context, key, id string, info *narinfo.NarInfo) error {
	if err := c.backend.Promote(ctx, key); err != nil {
		return fmt.Errorf("promoting %s: %w", key, err)
	}

	if err := c.index.Insert(ctx, index.FromNarInfo(id, info)); err != nil {
		return fmt.Errorf("indexing %s: %w", id, err)
	}

	logging.Info().
		Add(logging.RecordID(id)).
		Add(logging.Key(key)).
		Add(logging.StorePath(info.StorePath)).
		Add(logging.NarSize(info.NarSize)).
		Msg("artifact published")

	return nil
}

// GetNarInfo returns the serialized metadata record published under
// id, or index.ErrNotFound.
func (c *Coordinator) GetNarInfo(ctx context.Context, id string) (string, error) {
	record, err := c.index.LookupByID(ctx, id)
	if err != nil {
		return "", err
	}

	info, err := record.NarInfo()
	if err != nil {
		return "", err
	}

	return info.String(), nil
}

// lookupKey finds the index record for the object at key. Records are
// indexed by their metadata URL, which conventionally carries the
// "nar/" prefix; an unprefixed URL is tried as a fallback.
func (c *Coordinator) lookupKey(ctx context.Context, key string) (index.Record, error) {
	record, err := c.index.LookupByURL(ctx, "nar/"+key)
	if errors.Is(err, index.ErrNotFound) {
		record, err = c.index.LookupByURL(ctx, key)
	}
	return record, err
}

// GetNar streams the promoted artifact at key. The index is consulted
// first; pending or unknown keys yield storage.ErrNotFound and staged
// bytes are never served.
func (c *Coordinator) GetNar(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := c.lookupKey(ctx, key); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return c.backend.ReadArtifact(ctx, key)
}

// StatNar reports whether a published artifact exists at key.
func (c *Coordinator) StatNar(ctx context.Context, key string) (bool, error) {
	_, err := c.lookupKey(ctx, key)
	if errors.Is(err, index.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// PendingCount reports the number of half-finished uploads. Used by
// tests and diagnostics.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}
