package proxycmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cachefs/internal/config"
	"cachefs/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a cacheproxy instance holds the singleton lock",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProxyConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pid, running := readLockPID(cfg.LockFile)
	if running {
		fmt.Printf("cacheproxy: running (PID %d, cache_root %s)\n", pid, cfg.CacheRoot)
	} else {
		fmt.Printf("cacheproxy: not running (cache_root %s)\n", cfg.CacheRoot)
	}
	return nil
}

func readLockPID(lockPath string) (int, bool) {
	data, err := os.ReadFile(lockPath + ".pid")
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, util.IsProcessRunning(pid)
}
