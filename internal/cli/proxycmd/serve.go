package proxycmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cachefs/internal/config"
	"cachefs/internal/diskfs"
	"cachefs/internal/proxy"
)

var (
	serveCacheRoot string
	serveServer    string
	serveCapacity  int64
	serveChunkSize int
	serveLogLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cacheproxy in the foreground",
	Long: `Opens the local disk cache, sweeps stale version files left over from a
previous run, and holds a singleton lock on cache_root for the lifetime of
the process. Client-facing dispatch (open/close/read/write/lseek/unlink) is
layered on top of the Engine by an external collaborator; this binary
exists to prove out the engine's own lifecycle independent of that layer.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveCacheRoot, "cache-root", "", "local cache directory (overrides config)")
	serveCmd.Flags().StringVar(&serveServer, "server", "", "cachesrv address (overrides config)")
	serveCmd.Flags().Int64Var(&serveCapacity, "capacity", 0, "cache capacity in bytes (overrides config)")
	serveCmd.Flags().IntVar(&serveChunkSize, "chunk-size", 0, "chunk size in bytes (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "trace, debug, info, warn, error (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProxyConfig(configPath)
	if err != nil && serveCacheRoot == "" {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		cfg = &config.ProxyConfig{}
	}
	if serveCacheRoot != "" {
		cfg.CacheRoot = serveCacheRoot
	}
	if serveServer != "" {
		cfg.ServerAddr = serveServer
	}
	if serveCapacity != 0 {
		cfg.CacheCapacityBytes = serveCapacity
	}
	if serveChunkSize != 0 {
		cfg.ChunkSize = serveChunkSize
	}
	if serveLogLevel != "" {
		cfg.LogLevel = serveLogLevel
	}
	cfg.ApplyDefaults()
	if cfg.CacheRoot == "" {
		return fmt.Errorf("cache root is required (set --cache-root or config cache_root:)")
	}
	if cfg.ServerAddr == "" {
		return fmt.Errorf("server address is required (set --server or config server_addr:)")
	}

	applyLogLevel(cfg.LogLevel)

	lock, err := proxy.AcquireSingleton(cfg.LockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	disk, err := diskfs.Open(cfg.CacheRoot)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}

	engine := proxy.NewEngine(disk, cfg.ServerAddr, cfg.CacheCapacityBytes, cfg.ChunkSize)
	removed, freed := engine.Sweep()
	log.WithFields(log.Fields{"removed": removed, "freed_bytes": freed}).Info("proxy: swept stale cache files")

	fmt.Printf("cacheproxy ready (cache_root %s, server %s)\n", cfg.CacheRoot, cfg.ServerAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("proxy: received signal, shutting down")

	return nil
}

func applyLogLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
