package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadProxyConfigMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadProxyConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadProxyConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	require.NoError(t, SaveProxyConfig(path, &ProxyConfig{
		CacheRoot:  dir,
		ServerAddr: "127.0.0.1:8700",
	}))

	cfg, err := LoadProxyConfig(path)
	require.NoError(t, err)
	require.Equal(t, dir, cfg.CacheRoot)
	require.Equal(t, "127.0.0.1:8700", cfg.ServerAddr)
	require.Equal(t, int64(512*1024*1024), cfg.CacheCapacityBytes)
	require.Equal(t, 200*1024, cfg.ChunkSize)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, filepath.Join(dir, ".cacheproxy.lock"), filepath.Clean(cfg.LockFile))
}

func TestLoadProxyConfigRequiresServerAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	require.NoError(t, SaveProxyConfig(path, &ProxyConfig{CacheRoot: dir}))

	_, err := LoadProxyConfig(path)
	require.Error(t, err)
}

func TestLoadProxyConfigPreservesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	require.NoError(t, SaveProxyConfig(path, &ProxyConfig{
		CacheRoot:          dir,
		ServerAddr:         "127.0.0.1:8700",
		CacheCapacityBytes: 1024,
		ChunkSize:          512,
	}))

	cfg, err := LoadProxyConfig(path)
	require.NoError(t, err)
	require.Equal(t, int64(1024), cfg.CacheCapacityBytes)
	require.Equal(t, 512, cfg.ChunkSize)
}
