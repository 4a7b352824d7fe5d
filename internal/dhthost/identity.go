package dhthost

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/holepunchto/blind-peer-cli/pkg/keys"
	"github.com/libp2p/go-libp2p/core/crypto"
	"golang.org/x/crypto/curve25519"
)

// loadOrCreateIdentity returns the node's ed25519 identity, generating and
// persisting one on first start. The same storage directory always yields
// the same identity.
func loadOrCreateIdentity(dir string) (crypto.PrivKey, error) {
	path := filepath.Join(dir, identityFile)

	raw, err := os.ReadFile(path)
	if err == nil {
		return crypto.UnmarshalPrivateKey(raw)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	raw, err = crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, err
	}
	return priv, nil
}

// loadOrCreateEncryptionKey returns the node's public encryption key. The
// curve25519 scalar lives next to the identity and never leaves disk; only
// the derived public point is exposed.
func loadOrCreateEncryptionKey(dir string) (keys.PublicKey, error) {
	path := filepath.Join(dir, encryptionFile)

	scalar, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		scalar = make([]byte, curve25519.ScalarSize)
		if _, err := io.ReadFull(rand.Reader, scalar); err != nil {
			return keys.PublicKey{}, err
		}
		if err := os.WriteFile(path, scalar, 0o600); err != nil {
			return keys.PublicKey{}, err
		}
	} else if err != nil {
		return keys.PublicKey{}, err
	}
	if len(scalar) != curve25519.ScalarSize {
		return keys.PublicKey{}, fmt.Errorf("corrupt encryption key: %d bytes", len(scalar))
	}

	point, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		return keys.PublicKey{}, err
	}
	var pk keys.PublicKey
	copy(pk[:], point)
	return pk, nil
}
