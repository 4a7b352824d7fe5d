// Package keys handles the fixed-length binary identifiers used across the
// blind peer: public keys, encryption keys, seeds, and scraper secrets.
//
// Identifiers are accepted in two external encodings (64-character hex or
// 52-character z-base-32) and always rendered back in their canonical
// z-base-32 form, so the same peer logs identically everywhere.
package keys

import (
	"encoding/hex"
	"fmt"

	"github.com/tv42/zbase32"
)

// Size is the length in bytes of every identifier handled by this package.
const Size = 32

// Encoded lengths of the two accepted external forms.
const (
	hexLen     = Size * 2 // 64
	zbase32Len = 52
)

// PublicKey is a peer's 32-byte public key (or a derived discovery key).
type PublicKey [Size]byte

// Seed is a 32-byte secret seed, used only for the debug console.
type Seed [Size]byte

// Secret is a 32-byte shared secret, used for scraper authentication.
type Secret [Size]byte

// decode parses s as hex or z-base-32 depending on its length.
func decode(s string) ([Size]byte, error) {
	var out [Size]byte
	switch len(s) {
	case hexLen:
		b, err := hex.DecodeString(s)
		if err != nil {
			return out, fmt.Errorf("invalid hex key %q: %w", s, err)
		}
		copy(out[:], b)
		return out, nil
	case zbase32Len:
		b, err := zbase32.DecodeString(s)
		if err != nil {
			return out, fmt.Errorf("invalid z-base-32 key %q: %w", s, err)
		}
		if len(b) < Size {
			return out, fmt.Errorf("z-base-32 key %q decodes to %d bytes, want %d", s, len(b), Size)
		}
		copy(out[:], b[:Size])
		return out, nil
	default:
		return out, fmt.Errorf("key %q has length %d, want %d (hex) or %d (z-base-32)", s, len(s), hexLen, zbase32Len)
	}
}

// DecodePublic parses a public key from its external encoding.
func DecodePublic(s string) (PublicKey, error) {
	b, err := decode(s)
	return PublicKey(b), err
}

// DecodeSeed parses a seed from its external encoding.
func DecodeSeed(s string) (Seed, error) {
	b, err := decode(s)
	return Seed(b), err
}

// DecodeSecret parses a shared secret from its external encoding.
func DecodeSecret(s string) (Secret, error) {
	b, err := decode(s)
	return Secret(b), err
}

// String renders the key in its canonical z-base-32 form.
func (k PublicKey) String() string {
	return Format(k[:])
}

// Bytes returns the raw key bytes.
func (k PublicKey) Bytes() []byte {
	return k[:]
}

// Format renders raw identifier bytes in the canonical z-base-32 form.
// All log output goes through this single function so that a given key
// always appears the same, whatever event produced it.
func Format(b []byte) string {
	if len(b) == 0 {
		return "<none>"
	}
	return zbase32.EncodeToString(b)
}
