package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProxyConfig is cacheproxy's on-disk configuration (spec §2/§4.1/§4.3).
type ProxyConfig struct {
	// CacheRoot is the local directory backing the proxy's LRU disk cache.
	CacheRoot string `yaml:"cache_root"`
	// ServerAddr is the cachesrv address to talk to.
	ServerAddr string `yaml:"server_addr"`
	// CacheCapacityBytes bounds total on-disk cache occupancy.
	CacheCapacityBytes int64 `yaml:"cache_capacity_bytes"`
	// ChunkSize is the transfer unit for chunked upload/download, in bytes.
	ChunkSize int `yaml:"chunk_size"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LockFile is where the singleton pidfile lock is taken.
	LockFile string `yaml:"lock_file"`
}

// ApplyDefaults fills zero-value fields with cacheproxy's defaults.
func (c *ProxyConfig) ApplyDefaults() {
	if c.CacheCapacityBytes <= 0 {
		c.CacheCapacityBytes = 512 * 1024 * 1024
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 200 * 1024
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LockFile == "" && c.CacheRoot != "" {
		c.LockFile = c.CacheRoot + "/.cacheproxy.lock"
	}
}

// LoadProxyConfig loads a ProxyConfig from path, applying defaults for
// anything left unset. A missing file is read as an empty config; since
// cache_root and server_addr have no defaults, that ends in an error.
func LoadProxyConfig(path string) (*ProxyConfig, error) {
	cfg := &ProxyConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	if cfg.CacheRoot == "" {
		return nil, fmt.Errorf("config: cache_root is required")
	}
	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("config: server_addr is required")
	}
	return cfg, nil
}

// SaveProxyConfig writes cfg to path as YAML.
func SaveProxyConfig(path string, cfg *ProxyConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
