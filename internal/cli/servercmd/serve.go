package servercmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cachefs/internal/config"
	"cachefs/internal/server"
)

var (
	serveRoot      string
	serveAddr      string
	serveChunkSize int
	serveLogLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cachesrv in the foreground",
	Long:  `Starts the cache server, binding its RPC listener and holding a singleton lock on the service root.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "service root directory (overrides config)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "TCP address to listen on (overrides config)")
	serveCmd.Flags().IntVar(&serveChunkSize, "chunk-size", 0, "chunk size in bytes (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "trace, debug, info, warn, error (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil && serveRoot == "" {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	if serveRoot != "" {
		cfg.Root = serveRoot
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if serveChunkSize != 0 {
		cfg.ChunkSize = serveChunkSize
	}
	if serveLogLevel != "" {
		cfg.LogLevel = serveLogLevel
	}
	cfg.ApplyDefaults()
	if cfg.Root == "" {
		return fmt.Errorf("root directory is required (set --root or config root:)")
	}

	applyLogLevel(cfg.LogLevel)

	lock, err := server.AcquireSingleton(cfg.LockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	srv, err := server.New(server.Config{
		Root:      cfg.Root,
		Addr:      cfg.Addr,
		ChunkSize: cfg.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	addr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	fmt.Printf("cachesrv listening on %s (root %s)\n", addr, cfg.Root)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("server: received signal, shutting down")

	return srv.Stop()
}

func applyLogLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
