package keys

import (
	"strings"
	"testing"
)

func TestDecodePublic_Hex(t *testing.T) {
	hex := strings.Repeat("ab", Size)

	pk, err := DecodePublic(hex)
	if err != nil {
		t.Fatalf("DecodePublic(%q) failed: %v", hex, err)
	}
	for i, b := range pk {
		if b != 0xab {
			t.Fatalf("byte %d = %#x, want 0xab", i, b)
		}
	}
}

func TestDecodePublic_ZBase32RoundTrip(t *testing.T) {
	var pk PublicKey
	for i := range pk {
		pk[i] = byte(i * 7)
	}

	encoded := pk.String()
	if len(encoded) != zbase32Len {
		t.Fatalf("canonical encoding has length %d, want %d", len(encoded), zbase32Len)
	}

	decoded, err := DecodePublic(encoded)
	if err != nil {
		t.Fatalf("DecodePublic(%q) failed: %v", encoded, err)
	}
	if decoded != pk {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, pk)
	}
}

func TestDecodePublic_BadLength(t *testing.T) {
	for _, s := range []string{"", "abcd", strings.Repeat("a", 63), strings.Repeat("a", 100)} {
		if _, err := DecodePublic(s); err == nil {
			t.Errorf("DecodePublic(%q) succeeded, want error", s)
		}
	}
}

func TestDecodePublic_BadHexDigits(t *testing.T) {
	s := strings.Repeat("zz", Size) // right length for hex, wrong alphabet
	if _, err := DecodePublic(s); err == nil {
		t.Fatal("expected error for non-hex characters")
	}
}

func TestFormat_Deterministic(t *testing.T) {
	var pk PublicKey
	pk[0] = 0x42

	a := Format(pk[:])
	b := pk.String()
	if a != b {
		t.Fatalf("Format and String disagree: %q vs %q", a, b)
	}
}

func TestFormat_Empty(t *testing.T) {
	if got := Format(nil); got != "<none>" {
		t.Fatalf("Format(nil) = %q, want %q", got, "<none>")
	}
}
