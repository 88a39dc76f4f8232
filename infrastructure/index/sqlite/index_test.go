package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/narcache/domain/index"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DSN = "file:" + filepath.Join(t.TempDir(), "index.db")

	idx, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	return idx
}

func sampleRecord(id string) index.Record {
	fileSize := int64(2048)
	return index.Record{
		ID:               id,
		StorePath:        "/nix/store/" + id + "-pkg-1.0",
		RegistrationTime: time.Now().UTC().Truncate(time.Second),
		NarHash:          "sha256:1b8m03r63zqhnjf7l5wnldhh7c134ap5vpj0850ymkq1iyzicy5s",
		NarSize:          4096,
		FileHash:         "sha256:1b8m03r63zqhnjf7l5wnldhh7c134ap5vpj0850ymkq1iyzicy5s",
		FileSize:         &fileSize,
		URL:              "nar/" + id + ".nar.xz",
		Compression:      "xz",
		Refs:             "/nix/store/aaa-dep /nix/store/bbb-dep",
		Sigs:             "cache-1:c2lnbmF0dXJl",
	}
}

func TestIndexInsertAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newTestIndex(t)

	want := sampleRecord("abc123")
	if err := idx.Insert(ctx, want); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := idx.LookupByID(ctx, "abc123")
	if err != nil {
		t.Fatalf("LookupByID() error = %v", err)
	}

	if got.StorePath != want.StorePath {
		t.Errorf("StorePath = %q, want %q", got.StorePath, want.StorePath)
	}
	if got.NarHash != want.NarHash {
		t.Errorf("NarHash = %q, want %q", got.NarHash, want.NarHash)
	}
	if got.NarSize != want.NarSize {
		t.Errorf("NarSize = %d, want %d", got.NarSize, want.NarSize)
	}
	if got.FileSize == nil || *got.FileSize != *want.FileSize {
		t.Errorf("FileSize = %v, want %v", got.FileSize, *want.FileSize)
	}
	if !got.RegistrationTime.Equal(want.RegistrationTime) {
		t.Errorf("RegistrationTime = %v, want %v", got.RegistrationTime, want.RegistrationTime)
	}
	if got.Refs != want.Refs {
		t.Errorf("Refs = %q, want %q", got.Refs, want.Refs)
	}
	if got.Sigs != want.Sigs {
		t.Errorf("Sigs = %q, want %q", got.Sigs, want.Sigs)
	}
}

func TestIndexLookupByURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newTestIndex(t)

	record := sampleRecord("xyz789")
	if err := idx.Insert(ctx, record); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := idx.LookupByURL(ctx, "nar/xyz789.nar.xz")
	if err != nil {
		t.Fatalf("LookupByURL() error = %v", err)
	}
	if got.ID != "xyz789" {
		t.Errorf("ID = %q, want %q", got.ID, "xyz789")
	}
}

func TestIndexDuplicateInsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newTestIndex(t)

	if err := idx.Insert(ctx, sampleRecord("dup")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := idx.Insert(ctx, sampleRecord("dup")); !errors.Is(err, index.ErrAlreadyExists) {
		t.Errorf("second Insert() error = %v, want ErrAlreadyExists", err)
	}
}

func TestIndexMissingRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newTestIndex(t)

	if _, err := idx.LookupByID(ctx, "ghost"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("LookupByID() error = %v, want ErrNotFound", err)
	}
	if _, err := idx.LookupByURL(ctx, "nar/ghost.nar.xz"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("LookupByURL() error = %v, want ErrNotFound", err)
	}
}

func TestIndexOptionalColumns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newTestIndex(t)

	minimal := index.Record{
		ID:               "minimal",
		StorePath:        "/nix/store/minimal-pkg",
		RegistrationTime: time.Now().UTC().Truncate(time.Second),
		NarHash:          "sha256:1b8m03r63zqhnjf7l5wnldhh7c134ap5vpj0850ymkq1iyzicy5s",
		NarSize:          128,
		URL:              "nar/minimal.nar.xz",
	}
	if err := idx.Insert(ctx, minimal); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := idx.LookupByID(ctx, "minimal")
	if err != nil {
		t.Fatalf("LookupByID() error = %v", err)
	}
	if got.FileSize != nil {
		t.Errorf("FileSize = %v, want nil", got.FileSize)
	}
	if got.FileHash != "" || got.Deriver != "" || got.CA != "" {
		t.Errorf("optional strings not empty: %q %q %q", got.FileHash, got.Deriver, got.CA)
	}
	if !got.LastAccessed.IsZero() {
		t.Errorf("LastAccessed = %v, want zero", got.LastAccessed)
	}
}

func TestIndexInvalidID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := newTestIndex(t)

	if err := idx.Insert(ctx, index.Record{}); !errors.Is(err, index.ErrInvalidID) {
		t.Errorf("Insert() error = %v, want ErrInvalidID", err)
	}
	if _, err := idx.LookupByID(ctx, ""); !errors.Is(err, index.ErrInvalidID) {
		t.Errorf("LookupByID(\"\") error = %v, want ErrInvalidID", err)
	}
}
