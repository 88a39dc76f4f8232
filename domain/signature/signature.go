// Package signature provides the codec for detached Ed25519
// signatures and cache public keys, and verification of artifact
// fingerprints against a set of trusted keys.
//
// Both signatures and public keys share the textual form
// "<keyName>:<base64>", with standard padded base64 for the payload.
package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Domain errors for signature handling.
var (
	// ErrMalformed indicates a textual signature or key without a key
	// name, without a colon separator, or with an invalid payload.
	ErrMalformed = errors.New("signature: malformed signature")

	// ErrWrongKeySize indicates key material that is not a valid
	// Ed25519 public key.
	ErrWrongKeySize = errors.New("signature: wrong public key size")

	// ErrNoValidSignature indicates that no trusted key validated the
	// fingerprint.
	ErrNoValidSignature = errors.New("signature: no valid signature")
)

// Signature is a detached signature attributed to a named key.
type Signature struct {
	KeyName string
	Bytes   []byte
}

// ParseSignature parses "<keyName>:<base64>". The key name must be
// non-empty; the payload must be valid standard base64.
func ParseSignature(s string) (Signature, error) {
	name, payload, err := splitKeyed(s)
	if err != nil {
		return Signature{}, err
	}
	return Signature{KeyName: name, Bytes: payload}, nil
}

// String returns the textual form. It is the exact inverse of
// ParseSignature.
func (s Signature) String() string {
	return s.KeyName + ":" + base64.StdEncoding.EncodeToString(s.Bytes)
}

// PublicKey is a named Ed25519 public key a verifier trusts. Public
// keys are configuration; the core never persists them.
type PublicKey struct {
	KeyName string
	Bytes   []byte
}

// ParsePublicKey parses "<keyName>:<base64>" and checks that the key
// material has the Ed25519 public key size.
func ParsePublicKey(s string) (PublicKey, error) {
	name, payload, err := splitKeyed(s)
	if err != nil {
		return PublicKey{}, err
	}
	if len(payload) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: %d bytes, want %d", ErrWrongKeySize, len(payload), ed25519.PublicKeySize)
	}
	return PublicKey{KeyName: name, Bytes: payload}, nil
}

// String returns the textual form. It is the exact inverse of
// ParsePublicKey.
func (k PublicKey) String() string {
	return k.KeyName + ":" + base64.StdEncoding.EncodeToString(k.Bytes)
}

// VerifyFingerprint checks the signatures map against the trusted
// keys. For each trusted key with an entry in the map, the exact
// fingerprint bytes are verified with Ed25519; the first success wins.
// The fingerprint string is the signed message as-is, with no hashing
// or normalization.
func VerifyFingerprint(fingerprint string, signatures map[string][]byte, trusted []PublicKey) error {
	message := []byte(fingerprint)

	for _, key := range trusted {
		sig, ok := signatures[key.KeyName]
		if !ok {
			continue
		}
		if len(key.Bytes) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			continue
		}
		if ed25519.Verify(ed25519.PublicKey(key.Bytes), message, sig) {
			return nil
		}
	}

	return ErrNoValidSignature
}

// splitKeyed splits "<keyName>:<base64>" into its parts.
func splitKeyed(s string) (string, []byte, error) {
	name, encoded, ok := strings.Cut(s, ":")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing separator in %q", ErrMalformed, s)
	}
	if name == "" {
		return "", nil, fmt.Errorf("%w: empty key name in %q", ErrMalformed, s)
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return name, payload, nil
}
