package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadServerConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadServerConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, SaveServerConfig(path, &ServerConfig{Root: dir}))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	require.Equal(t, dir, cfg.Root)
	require.Equal(t, "127.0.0.1:8700", cfg.Addr)
	require.Equal(t, 200*1024, cfg.ChunkSize)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, filepath.Join(dir, ".cachesrv.lock"), filepath.Clean(cfg.LockFile))
}

func TestLoadServerConfigPreservesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, SaveServerConfig(path, &ServerConfig{
		Root:      dir,
		Addr:      "0.0.0.0:9000",
		ChunkSize: 4096,
		LogLevel:  "debug",
	}))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Addr)
	require.Equal(t, 4096, cfg.ChunkSize)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadServerConfigRequiresRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, SaveServerConfig(path, &ServerConfig{Addr: "127.0.0.1:8700"}))

	_, err := LoadServerConfig(path)
	require.Error(t, err)
}
