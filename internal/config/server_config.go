// Package config loads the YAML configuration files for cachesrv and
// cacheproxy, grounded in the teacher's internal/daemon/config.go pattern
// of a plain struct with yaml tags, ApplyDefaults, and a LoadXFromPath
// function that tolerates a missing file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig is cachesrv's on-disk configuration (spec §2/§4.4).
type ServerConfig struct {
	// Root is the service root every path in the protocol is relative to.
	Root string `yaml:"root"`
	// Addr is the TCP address cachesrv listens on.
	Addr string `yaml:"addr"`
	// ChunkSize is the transfer unit for chunked upload/download, in bytes.
	ChunkSize int `yaml:"chunk_size"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LockFile is where the singleton pidfile lock is taken.
	LockFile string `yaml:"lock_file"`
}

// ApplyDefaults fills zero-value fields with cachesrv's defaults.
func (c *ServerConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8700"
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 200 * 1024
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LockFile == "" && c.Root != "" {
		c.LockFile = c.Root + "/.cachesrv.lock"
	}
}

// LoadServerConfig loads a ServerConfig from path, applying defaults for
// anything left unset. A missing file is read as an empty config, the way
// the teacher's LoadProjectConfigFromPath treats ENOENT as "no overrides";
// since root has no default, that still ends in the "root is required"
// error.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
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
	if cfg.Root == "" {
		return nil, fmt.Errorf("config: root is required")
	}
	return cfg, nil
}

// SaveServerConfig writes cfg to path as YAML.
func SaveServerConfig(path string, cfg *ServerConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
