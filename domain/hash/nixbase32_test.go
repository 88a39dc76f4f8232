package hash_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/felixgeelhaar/narcache/domain/hash"
)

// Reference vectors. The multi-byte digest and its encoding come from
// Nix's own hash examples; the short inputs pin down the group order
// at byte boundaries.
var base32Vectors = []struct {
	decoded []byte
	encoded string
}{
	{nil, ""},
	{[]byte{0x1f}, "0z"},
	{[]byte{0xff}, "7z"},
	{
		[]byte{
			0xd8, 0x6b, 0x33, 0x92, 0xc1, 0x20, 0x2e, 0x8f,
			0xf5, 0xa4, 0x23, 0xb3, 0x02, 0xe6, 0x28, 0x4d,
			0xb7, 0xf8, 0xf4, 0x35, 0xea, 0x9f, 0x39, 0xb5,
			0xb1, 0xb2, 0x0f, 0xd3, 0xac, 0x36, 0xdf, 0xcb,
		},
		"1jyz6snd63xjn6skk7za6psgidsd53k05cr3lksqybi0q6936syq",
	},
}

func TestEncodeToString(t *testing.T) {
	t.Parallel()

	for _, tc := range base32Vectors {
		if got := hash.EncodeToString(tc.decoded); got != tc.encoded {
			t.Errorf("EncodeToString(%x) = %q, want %q", tc.decoded, got, tc.encoded)
		}
	}
}

func TestDecodeString(t *testing.T) {
	t.Parallel()

	t.Run("known vectors", func(t *testing.T) {
		t.Parallel()

		for _, tc := range base32Vectors {
			got, err := hash.DecodeString(tc.encoded)
			if err != nil {
				t.Fatalf("DecodeString(%q) error = %v", tc.encoded, err)
			}
			if !bytes.Equal(got, tc.decoded) {
				t.Errorf("DecodeString(%q) = %x, want %x", tc.encoded, got, tc.decoded)
			}
		}
	})

	t.Run("rejects characters outside the alphabet", func(t *testing.T) {
		t.Parallel()

		// e, o, u, t are deliberately excluded; uppercase never valid.
		for _, s := range []string{"0e", "to", "0U", "0Z", "0="} {
			if _, err := hash.DecodeString(s); !errors.Is(err, hash.ErrInvalidBase32) {
				t.Errorf("DecodeString(%q) error = %v, want ErrInvalidBase32", s, err)
			}
		}
	})

	t.Run("rejects non-zero padding", func(t *testing.T) {
		t.Parallel()

		// "zz" would need 10 bits but one byte holds 8; the spilled
		// bits are non-zero, so the string has no byte preimage.
		if _, err := hash.DecodeString("zz"); !errors.Is(err, hash.ErrInvalidBase32) {
			t.Errorf("DecodeString(%q) error = %v, want ErrInvalidBase32", "zz", err)
		}
	})
}

func TestBase32RoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	for size := 0; size <= 70; size++ {
		buf := make([]byte, size)
		rng.Read(buf)

		encoded := hash.EncodeToString(buf)
		if len(encoded) != hash.EncodedLen(size) {
			t.Fatalf("EncodedLen(%d) = %d, encoded length = %d", size, hash.EncodedLen(size), len(encoded))
		}

		decoded, err := hash.DecodeString(encoded)
		if err != nil {
			t.Fatalf("DecodeString(%q) error = %v", encoded, err)
		}
		if !bytes.Equal(decoded, buf) {
			t.Fatalf("round-trip mismatch at size %d: %x != %x", size, decoded, buf)
		}
	}
}
