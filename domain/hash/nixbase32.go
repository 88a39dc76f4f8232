package hash

import (
	"errors"
	"fmt"
	"strings"
)

// alphabet is the Nix base-32 character set: digits and lowercase
// letters with e, o, u and t removed. This exact alphabet is required
// for interoperability with Nix; it is not RFC 4648 base-32.
const alphabet = "0123456789abcdfghijklmnpqrsvwxyz"

// ErrInvalidBase32 indicates a string that is not valid Nix base-32.
var ErrInvalidBase32 = errors.New("hash: invalid base32")

// EncodedLen returns the base-32 string length for n input bytes.
func EncodedLen(n int) int {
	return (n*8 + 4) / 5
}

// DecodedLen returns the byte length decoded from an n-character
// base-32 string.
func DecodedLen(n int) int {
	return n * 5 / 8
}

// EncodeToString encodes src in Nix base-32.
//
// The input is treated as one big unsigned integer with byte 0 holding
// the most significant bits. Characters are emitted most-significant
// group first: the character at string index k covers the 5 bits
// starting at offset (encodedLen-1-k)*5 from the least significant end,
// so groups may straddle a byte boundary. Encoding nil or an empty
// slice yields "".
func EncodeToString(src []byte) string {
	var sb strings.Builder
	sb.Grow(EncodedLen(len(src)))

	for n := EncodedLen(len(src)) - 1; n >= 0; n-- {
		b := n * 5
		i := b / 8
		j := b % 8

		c := src[i] >> j
		if i+1 < len(src) {
			c |= src[i+1] << (8 - j)
		}

		sb.WriteByte(alphabet[c&0x1f])
	}

	return sb.String()
}

// DecodeString decodes a Nix base-32 string. Characters outside the
// alphabet and strings whose final group carries non-zero padding bits
// are rejected.
func DecodeString(s string) ([]byte, error) {
	dst := make([]byte, DecodedLen(len(s)))

	for n := 0; n < len(s); n++ {
		c := s[len(s)-n-1]

		digit := strings.IndexByte(alphabet, c)
		if digit < 0 {
			return nil, fmt.Errorf("%w: character %q at offset %d", ErrInvalidBase32, c, len(s)-n-1)
		}

		b := n * 5
		i := b / 8
		j := b % 8

		dst[i] |= byte(digit << j) // nolint:gosec // digit < 32

		carry := byte(digit >> (8 - j))
		if i+1 < len(dst) {
			dst[i+1] |= carry
		} else if carry != 0 {
			// Bits beyond the last byte must be zero, otherwise two
			// distinct strings would decode to the same bytes.
			return nil, fmt.Errorf("%w: non-zero padding", ErrInvalidBase32)
		}
	}

	return dst, nil
}
