package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ParsesYAMLAndExpandsEnv(t *testing.T) {
	t.Setenv("CASKDB_TEST_PORT", "9999")

	path := filepath.Join(t.TempDir(), "config.yml")
	contents := "data_dir: /tmp/caskdb-data\nlisten_port: ${CASKDB_TEST_PORT}\nlog_level: debug\nsync_writes: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/caskdb-data", cfg.DataDir)
	assert.Equal(t, 9999, cfg.ListenPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.SyncWrites)
}

func TestSave_RoundTrips(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "custom-dir"

	path := filepath.Join(t.TempDir(), "out.yml")
	require.NoError(t, cfg.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}
