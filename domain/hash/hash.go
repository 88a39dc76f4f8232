// Package hash provides content hashes in the Nix textual form
// "<algorithm>:<base32digest>", including the non-standard base-32
// encoding Nix uses for digests.
package hash

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

// Supported algorithms.
const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Domain errors for hash parsing.
var (
	// ErrUnknownAlgorithm indicates an unrecognized algorithm tag.
	ErrUnknownAlgorithm = errors.New("hash: unknown algorithm")

	// ErrMalformed indicates a textual hash without an algorithm prefix.
	ErrMalformed = errors.New("hash: malformed hash")

	// ErrWrongDigestLength indicates a digest whose length does not
	// match the declared algorithm.
	ErrWrongDigestLength = errors.New("hash: wrong digest length")
)

// ParseAlgorithm parses an algorithm tag. Unknown tags are a hard
// failure; there is no fallback algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case MD5, SHA1, SHA256, SHA512:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Size returns the digest size in bytes, or 0 for an unknown algorithm.
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return 16
	case SHA1:
		return 20
	case SHA256:
		return 32
	case SHA512:
		return 64
	default:
		return 0
	}
}

// Hash is a content hash: an algorithm tag plus the raw digest bytes.
type Hash struct {
	Algorithm Algorithm
	Digest    []byte
}

// Parse parses the textual form "<algorithm>:<base32digest>". The
// decoded digest must have exactly the length the algorithm declares.
func Parse(s string) (Hash, error) {
	algo, digest, ok := strings.Cut(s, ":")
	if !ok {
		return Hash{}, fmt.Errorf("%w: missing algorithm separator in %q", ErrMalformed, s)
	}

	algorithm, err := ParseAlgorithm(algo)
	if err != nil {
		return Hash{}, err
	}

	raw, err := DecodeString(digest)
	if err != nil {
		return Hash{}, err
	}

	if len(raw) != algorithm.Size() || len(digest) != EncodedLen(algorithm.Size()) {
		return Hash{}, fmt.Errorf("%w: %s digest is %d bytes, want %d",
			ErrWrongDigestLength, algorithm, len(raw), algorithm.Size())
	}

	return Hash{Algorithm: algorithm, Digest: raw}, nil
}

// String returns the canonical textual form. It is the exact inverse
// of Parse.
func (h Hash) String() string {
	return string(h.Algorithm) + ":" + EncodeToString(h.Digest)
}

// Equal reports whether two hashes have the same algorithm and digest.
func (h Hash) Equal(other Hash) bool {
	return h.Algorithm == other.Algorithm && bytes.Equal(h.Digest, other.Digest)
}

// IsZero reports whether the hash is the zero value.
func (h Hash) IsZero() bool {
	return h.Algorithm == "" && h.Digest == nil
}
