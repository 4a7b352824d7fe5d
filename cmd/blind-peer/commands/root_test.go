package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawFromFlags_FlagValues(t *testing.T) {
	f := rootCmd.PersistentFlags()
	require.NoError(t, f.Set("storage", "/var/lib/blind-peer"))
	require.NoError(t, f.Set("trusted-peer", "aaaa"))
	require.NoError(t, f.Set("trusted-peer", "bbbb"))
	require.NoError(t, f.Set("stream-logging", "true"))
	t.Cleanup(func() {
		_ = f.Set("storage", "")
		_ = f.Set("stream-logging", "false")
	})

	raw := rawFromFlags()
	assert.Equal(t, "/var/lib/blind-peer", raw.Storage)
	assert.Equal(t, []string{"aaaa", "bbbb"}, raw.TrustedPeers)
	assert.True(t, raw.StreamLogging)
}

func TestRawFromFlags_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BLIND_PEER_MAX_STORAGE", "50000")
	t.Setenv("BLIND_PEER_AUTO_SHUTDOWN", "60")

	raw := rawFromFlags()
	assert.Equal(t, "50000", raw.MaxStorageMB)
	assert.Equal(t, "60", raw.AutoShutdownMinutes)
}

func TestLoadConfigFile_MergesUnderFlagsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blind-peer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max-storage: \"250\"\ndht-port: \"4977\"\n"), 0o600))

	require.NoError(t, loadConfigFile(v, path))

	raw := rawFromFlags()
	assert.Equal(t, "250", raw.MaxStorageMB)
	assert.Equal(t, "4977", raw.DHTPort)

	// Environment still outranks the file.
	t.Setenv("BLIND_PEER_MAX_STORAGE", "50")
	assert.Equal(t, "50", rawFromFlags().MaxStorageMB)
}

func TestLoadConfigFile_MissingDefaultIsFine(t *testing.T) {
	assert.NoError(t, loadConfigFile(v, ""))
}

func TestLoadConfigFile_MissingExplicitFileIsFatal(t *testing.T) {
	err := loadConfigFile(v, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRootCommand_HasRunAndVersion(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["version"])
}
