// Package narinfo provides the codec for the artifact metadata record
// ("narinfo"): the newline-separated "Key: value" text document that
// describes one store path in a binary cache, plus the canonical
// signing fingerprint derived from it.
package narinfo

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/narcache/domain/hash"
	"github.com/felixgeelhaar/narcache/domain/signature"
)

// StorePrefix is the store root prepended to the bare path segments of
// a References line. Reference sets always hold absolute store paths.
const StorePrefix = "/nix/store/"

// Domain errors for narinfo parsing.
var (
	// ErrBadNarInfo indicates a malformed record: a line without the
	// "Key: value" separator, a missing required key, or a field value
	// that does not parse.
	ErrBadNarInfo = errors.New("narinfo: bad narinfo")

	// ErrUnknownCompression indicates an unrecognized compression tag.
	ErrUnknownCompression = errors.New("narinfo: unknown compression")
)

// Compression identifies the compression applied to the stored object.
type Compression string

// Supported compression algorithms. The zero value means the field was
// absent, which is distinct from CompressionNone.
const (
	CompressionXZ    Compression = "xz"
	CompressionBzip2 Compression = "bzip2"
	CompressionGzip  Compression = "gzip"
	CompressionZstd  Compression = "zstd"
	CompressionNone  Compression = "none"
)

// ParseCompression parses a compression tag. Unknown tags are a hard
// failure.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case CompressionXZ, CompressionBzip2, CompressionGzip, CompressionZstd, CompressionNone:
		return Compression(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// NarInfo is the full descriptor of one build artifact. StorePath,
// NarHash and NarSize are required; everything else is optional.
type NarInfo struct {
	// StorePath is the artifact's canonical absolute identity.
	StorePath string

	// NarHash and NarSize describe the uncompressed archive.
	NarHash hash.Hash
	NarSize uint64

	// FileHash and FileSize describe the compressed object actually
	// stored. Nil when unknown.
	FileHash *hash.Hash
	FileSize *uint64

	// URL is the relative storage key of the compressed object. It
	// drives upload pairing.
	URL string

	// Compression is the compression of the stored object. Empty when
	// the field was absent.
	Compression Compression

	// Deriver is the derivation that produced the artifact.
	// Informational only.
	Deriver string

	// CA is an opaque content-addressing tag, passed through unparsed.
	CA string

	// References holds the absolute store paths this artifact refers
	// to, unique and sorted.
	References []string

	// Signatures maps key names to raw signature bytes.
	Signatures map[string][]byte
}

// Fingerprint returns the canonical string that is signed and
// verified: "1;<storePath>;<narHash>;<narSize>;<refs>", with the
// references sorted and comma-joined. It must be byte-identical
// between producer and verifier; the serialized record is never the
// signed message.
func (n *NarInfo) Fingerprint() string {
	refs := append([]string(nil), n.References...)
	sort.Strings(refs)

	return "1;" + n.StorePath +
		";" + n.NarHash.String() +
		";" + strconv.FormatUint(n.NarSize, 10) +
		";" + strings.Join(refs, ",")
}

// CheckSignature verifies the record's signatures against the trusted
// keys. It returns signature.ErrNoValidSignature when no trusted key
// validates the fingerprint.
func (n *NarInfo) CheckSignature(trusted []signature.PublicKey) error {
	return signature.VerifyFingerprint(n.Fingerprint(), n.Signatures, trusted)
}

// AddSignature records a signature, replacing any previous signature
// by the same key.
func (n *NarInfo) AddSignature(sig signature.Signature) {
	if n.Signatures == nil {
		n.Signatures = make(map[string][]byte)
	}
	n.Signatures[sig.KeyName] = sig.Bytes
}

// Parse parses the textual narinfo record. Each line must be
// "Key: value" with exactly one colon-space separator. Unknown keys
// and duplicate signature keys are non-fatal and reported in the
// returned warnings; a duplicate signature key overwrites the earlier
// entry. Missing required keys, unparsable numbers and unknown hash or
// compression tags are hard failures.
func Parse(text string) (*NarInfo, []string, error) {
	var (
		info     NarInfo
		warnings []string

		haveNarSize bool
	)
	info.Signatures = make(map[string][]byte)

	refs := make(map[string]struct{})

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, warnings, fmt.Errorf("%w: line %q has no %q separator", ErrBadNarInfo, line, ": ")
		}

		switch name {
		case "StorePath":
			info.StorePath = value

		case "NarHash":
			h, err := hash.Parse(value)
			if err != nil {
				return nil, warnings, err
			}
			info.NarHash = h

		case "NarSize":
			size, err := parseSize(value)
			if err != nil {
				return nil, warnings, err
			}
			info.NarSize = size
			haveNarSize = true

		case "FileHash":
			h, err := hash.Parse(value)
			if err != nil {
				return nil, warnings, err
			}
			info.FileHash = &h

		case "FileSize":
			size, err := parseSize(value)
			if err != nil {
				return nil, warnings, err
			}
			info.FileSize = &size

		case "URL":
			info.URL = value

		case "Compression":
			compression, err := ParseCompression(value)
			if err != nil {
				return nil, warnings, err
			}
			info.Compression = compression

		case "Deriver":
			info.Deriver = value

		case "References":
			for _, segment := range strings.Split(value, " ") {
				if segment == "" {
					continue
				}
				refs[StorePrefix+segment] = struct{}{}
			}

		case "Sig":
			sig, err := signature.ParseSignature(value)
			if err != nil {
				return nil, warnings, err
			}
			if _, exists := info.Signatures[sig.KeyName]; exists {
				warnings = append(warnings, fmt.Sprintf("duplicate signature for key %q", sig.KeyName))
			}
			info.Signatures[sig.KeyName] = sig.Bytes

		case "CA":
			info.CA = value

		default:
			warnings = append(warnings, fmt.Sprintf("unknown key %q", name))
		}
	}

	if info.StorePath == "" {
		return nil, warnings, fmt.Errorf("%w: missing StorePath", ErrBadNarInfo)
	}
	if info.NarHash.IsZero() {
		return nil, warnings, fmt.Errorf("%w: missing NarHash", ErrBadNarInfo)
	}
	if !haveNarSize {
		return nil, warnings, fmt.Errorf("%w: missing NarSize", ErrBadNarInfo)
	}

	info.References = make([]string, 0, len(refs))
	for ref := range refs {
		info.References = append(info.References, ref)
	}
	sort.Strings(info.References)

	return &info, warnings, nil
}

// String serializes the record. Field order is fixed; absent optional
// fields are omitted entirely; references are emitted with the store
// prefix stripped; Sig lines are sorted by key name so that repeated
// serializations are identical.
func (n *NarInfo) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "StorePath: %s\n", n.StorePath)
	fmt.Fprintf(&sb, "NarHash: %s\n", n.NarHash)
	fmt.Fprintf(&sb, "NarSize: %d\n", n.NarSize)

	if n.FileHash != nil {
		fmt.Fprintf(&sb, "FileHash: %s\n", n.FileHash)
	}
	if n.FileSize != nil {
		fmt.Fprintf(&sb, "FileSize: %d\n", *n.FileSize)
	}
	if n.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", n.URL)
	}
	if n.Compression != "" {
		fmt.Fprintf(&sb, "Compression: %s\n", n.Compression)
	}
	if n.Deriver != "" {
		fmt.Fprintf(&sb, "Deriver: %s\n", n.Deriver)
	}

	if len(n.References) > 0 {
		refs := append([]string(nil), n.References...)
		sort.Strings(refs)

		sb.WriteString("References:")
		for _, ref := range refs {
			sb.WriteByte(' ')
			sb.WriteString(strings.TrimPrefix(ref, StorePrefix))
		}
		sb.WriteByte('\n')
	}

	keyNames := make([]string, 0, len(n.Signatures))
	for keyName := range n.Signatures {
		keyNames = append(keyNames, keyName)
	}
	sort.Strings(keyNames)
	for _, keyName := range keyNames {
		sig := signature.Signature{KeyName: keyName, Bytes: n.Signatures[keyName]}
		fmt.Fprintf(&sb, "Sig: %s\n", sig)
	}

	if n.CA != "" {
		fmt.Fprintf(&sb, "CA: %s\n", n.CA)
	}

	return sb.String()
}

// parseSize parses a non-negative decimal integer. Signs, spaces and
// non-digits are hard failures.
func parseSize(s string) (uint64, error) {
	size, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q: %v", ErrBadNarInfo, s, err)
	}
	return size, nil
}
