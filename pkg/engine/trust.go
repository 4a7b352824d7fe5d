package engine

import (
	"sort"

	"github.com/holepunchto/blind-peer-cli/pkg/keys"
)

// TrustSet is the set of peer public keys authorized to request announce.
// The supervisor resolves it once at startup and hands it to the engine,
// which performs the actual enforcement; the supervisor only reads it back
// for logging and inspection.
//
// The zero value is an empty set. Duplicate keys are harmless.
type TrustSet struct {
	set map[keys.PublicKey]struct{}
}

// NewTrustSet builds a TrustSet from the given keys.
func NewTrustSet(pks []keys.PublicKey) TrustSet {
	set := make(map[keys.PublicKey]struct{}, len(pks))
	for _, pk := range pks {
		set[pk] = struct{}{}
	}
	return TrustSet{set: set}
}

// Has reports whether pk is trusted.
func (t TrustSet) Has(pk keys.PublicKey) bool {
	_, ok := t.set[pk]
	return ok
}

// Len is the number of distinct trusted keys.
func (t TrustSet) Len() int {
	return len(t.set)
}

// Keys returns the trusted keys in a stable order for logging.
func (t TrustSet) Keys() []keys.PublicKey {
	out := make([]keys.PublicKey, 0, len(t.set))
	for pk := range t.set {
		out = append(out, pk)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
