package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-sync/odyssey/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, uint16(28404), cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 32<<20, cfg.CacheSizeBytes)
	require.Empty(t, cfg.DataDir)
	require.Empty(t, cfg.Peers)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odyssey.toml")
	const body = `
Port = 9000
DataDir = "/var/lib/odyssey"
Peers = ["127.0.0.1:9001", "127.0.0.1:9002"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, uint16(9000), cfg.Port)
	require.Equal(t, "/var/lib/odyssey", cfg.DataDir)
	require.Equal(t, []string{"127.0.0.1:9001", "127.0.0.1:9002"}, cfg.Peers)

	// Fields the file didn't mention keep Default()'s values.
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 32<<20, cfg.CacheSizeBytes)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadMalformedTomlFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not = [valid toml"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
