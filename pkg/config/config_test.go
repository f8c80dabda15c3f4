package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	c := LoadFromEnv()
	assert.Equal(t, 256, c.Graph.Dimension)
	assert.Equal(t, "INFO", c.Logging.Level)
	assert.False(t, c.Codec.EncryptionEnabled)
	require.NoError(t, c.Validate())
}

func TestLoadFromEnvRespectsOverrides(t *testing.T) {
	os.Setenv("AGENTMEM_DIMENSION", "64")
	os.Setenv("AGENTMEM_ENCRYPTION_ENABLED", "true")
	os.Setenv("AGENTMEM_ENCRYPTION_PASSPHRASE", "s3cret")
	defer func() {
		os.Unsetenv("AGENTMEM_DIMENSION")
		os.Unsetenv("AGENTMEM_ENCRYPTION_ENABLED")
		os.Unsetenv("AGENTMEM_ENCRYPTION_PASSPHRASE")
	}()

	c := LoadFromEnv()
	assert.Equal(t, 64, c.Graph.Dimension)
	assert.True(t, c.Codec.EncryptionEnabled)
	require.NoError(t, c.Validate())
}

func TestValidateRejectsEncryptionWithoutPassphrase(t *testing.T) {
	c := LoadFromEnv()
	c.Codec.EncryptionEnabled = true
	c.Codec.EncryptionPassphrase = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsBadDimension(t *testing.T) {
	c := LoadFromEnv()
	c.Graph.Dimension = 0
	assert.Error(t, c.Validate())
}

func TestLoadFromFileOverridesDefaultsButNotPassphrase(t *testing.T) {
	os.Setenv("AGENTMEM_ENCRYPTION_PASSPHRASE", "from-env")
	defer os.Unsetenv("AGENTMEM_ENCRYPTION_PASSPHRASE")

	dir := t.TempDir()
	path := filepath.Join(dir, "agentmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph:\n  dimension: 128\n  snapshot_path: /tmp/snap\n"), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 128, c.Graph.Dimension)
	assert.Equal(t, "/tmp/snap", c.Graph.SnapshotPath)
	assert.Equal(t, "from-env", c.Codec.EncryptionPassphrase)
}

func TestLoadFromFileMissingFileFallsBackToEnvDefaults(t *testing.T) {
	c, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 256, c.Graph.Dimension)
}
