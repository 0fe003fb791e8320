package servercmd

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
	Short: "Report whether a cachesrv instance holds the singleton lock",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pid, running := readLockPID(cfg.LockFile)
	if running {
		fmt.Printf("cachesrv: running (PID %d, root %s)\n", pid, cfg.Root)
	} else {
		fmt.Printf("cachesrv: not running (root %s)\n", cfg.Root)
	}
	return nil
}

// readLockPID inspects the pidfile written alongside lockPath by
// AcquireSingleton and reports whether that PID is still alive.
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
