// Package index defines the finished-artifact index: the key-value
// record written once per published artifact and consulted on every
// fetch. Implementations are in infrastructure; the core never updates
// or deletes index entries.
package index

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/narcache/domain/hash"
	"github.com/felixgeelhaar/narcache/domain/narinfo"
	"github.com/felixgeelhaar/narcache/domain/signature"
)

// Domain errors for the index.
var (
	// ErrNotFound indicates no record for the id or url. A normal
	// outcome, not a failure.
	ErrNotFound = errors.New("index: record not found")

	// ErrAlreadyExists indicates an insert conflict on the record id.
	ErrAlreadyExists = errors.New("index: record already exists")

	// ErrInvalidID indicates an empty record id.
	ErrInvalidID = errors.New("index: invalid record id")
)

// Record is the flattened index row for one published artifact. String
// fields are empty when the underlying metadata field was absent;
// FileSize is nil when absent. Sigs and Refs are space-joined text, the
// layout the original schema used.
type Record struct {
	// ID is the server-assigned record id: the name under which the
	// metadata was uploaded.
	ID string

	StorePath        string
	RegistrationTime time.Time
	LastAccessed     time.Time
	NarHash          string
	NarSize          int64
	FileHash         string
	FileSize         *int64
	URL              string
	Compression      string
	Deriver          string
	CA               string
	Sigs             string
	Refs             string
}

// Index is the external artifact index consulted and written by the
// core.
type Index interface {
	// LookupByID returns the record published under id, or ErrNotFound.
	LookupByID(ctx context.Context, id string) (Record, error)

	// LookupByURL returns the record whose object lives at url, or
	// ErrNotFound.
	LookupByURL(ctx context.Context, url string) (Record, error)

	// Insert writes a record exactly once. A duplicate id is
	// ErrAlreadyExists.
	Insert(ctx context.Context, record Record) error
}

// FromNarInfo flattens a parsed metadata record into an index record
// under the given id, stamping the registration time.
func FromNarInfo(id string, info *narinfo.NarInfo) Record {
	record := Record{
		ID:               id,
		StorePath:        info.StorePath,
		RegistrationTime: time.Now().UTC(),
		NarHash:          info.NarHash.String(),
		NarSize:          int64(info.NarSize), // nolint:gosec // sizes fit in int64 in practice
		URL:              info.URL,
		Compression:      string(info.Compression),
		Deriver:          info.Deriver,
		CA:               info.CA,
	}

	if info.FileHash != nil {
		record.FileHash = info.FileHash.String()
	}
	if info.FileSize != nil {
		size := int64(*info.FileSize) // nolint:gosec
		record.FileSize = &size
	}

	refs := append([]string(nil), info.References...)
	sort.Strings(refs)
	record.Refs = strings.Join(refs, " ")

	sigs := make([]string, 0, len(info.Signatures))
	for keyName, bytes := range info.Signatures {
		sigs = append(sigs, signature.Signature{KeyName: keyName, Bytes: bytes}.String())
	}
	sort.Strings(sigs)
	record.Sigs = strings.Join(sigs, " ")

	return record
}

// NarInfo reconstructs the metadata record from the flattened row.
func (r Record) NarInfo() (*narinfo.NarInfo, error) {
	narHash, err := hash.Parse(r.NarHash)
	if err != nil {
		return nil, err
	}

	info := &narinfo.NarInfo{
		StorePath:  r.StorePath,
		NarHash:    narHash,
		NarSize:    uint64(r.NarSize), // nolint:gosec
		URL:        r.URL,
		Deriver:    r.Deriver,
		CA:         r.CA,
		Signatures: make(map[string][]byte),
	}

	if r.FileHash != "" {
		fileHash, err := hash.Parse(r.FileHash)
		if err != nil {
			return nil, err
		}
		info.FileHash = &fileHash
	}
	if r.FileSize != nil {
		size := uint64(*r.FileSize) // nolint:gosec
		info.FileSize = &size
	}

	if r.Compression != "" {
		compression, err := narinfo.ParseCompression(r.Compression)
		if err != nil {
			return nil, err
		}
		info.Compression = compression
	}

	if r.Refs != "" {
		info.References = strings.Split(r.Refs, " ")
		sort.Strings(info.References)
	} else {
		info.References = []string{}
	}

	if r.Sigs != "" {
		for _, text := range strings.Split(r.Sigs, " ") {
			sig, err := signature.ParseSignature(text)
			if err != nil {
				return nil, err
			}
			info.Signatures[sig.KeyName] = sig.Bytes
		}
	}

	return info, nil
}
