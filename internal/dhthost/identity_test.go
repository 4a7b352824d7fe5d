package dhthost

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/holepunchto/blind-peer-cli/pkg/config"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_PersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first, err := loadOrCreateIdentity(dir)
	require.NoError(t, err)
	second, err := loadOrCreateIdentity(dir)
	require.NoError(t, err)

	assert.True(t, first.Equals(second))
}

func TestIdentity_DistinctPerStorageDir(t *testing.T) {
	a, err := loadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)
	b, err := loadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)

	assert.False(t, a.Equals(b))
}

func TestEncryptionKey_PersistsAndExposesOnlyPublicPoint(t *testing.T) {
	dir := t.TempDir()

	first, err := loadOrCreateEncryptionKey(dir)
	require.NoError(t, err)
	second, err := loadOrCreateEncryptionKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	scalar, err := os.ReadFile(filepath.Join(dir, encryptionFile))
	require.NoError(t, err)
	assert.NotEqual(t, scalar, first[:])
}

func TestEncryptionKey_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, encryptionFile), []byte("short"), 0o600))

	_, err := loadOrCreateEncryptionKey(dir)
	require.Error(t, err)
}

func TestDigest_TracksBytesOnDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 1000), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cores"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cores", "b.bin"), make([]byte, 500), 0o600))

	h := New(&config.Config{Storage: dir, MaxBytes: 2000}, testLog())
	d := h.Digest()
	assert.Equal(t, uint64(1500), d.BytesAllocated)
	assert.Equal(t, uint64(2000), d.MaxBytes)
}

func TestTrusted_ComesFromConfiguration(t *testing.T) {
	var pk keys.PublicKey
	pk[0] = 7
	h := New(&config.Config{TrustedPeers: []keys.PublicKey{pk}}, testLog())

	assert.Equal(t, 1, h.Trusted().Len())
	assert.True(t, h.Trusted().Has(pk))
}

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
