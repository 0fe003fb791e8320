package proxycmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cachefs/internal/artifacts"
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Write a default cacheproxy config file",
	Long:  `Writes a proxy.yaml config template into the given directory (or the current directory).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absDir, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", absDir, err)
	}

	cfgPath := filepath.Join(absDir, "proxy.yaml")
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("proxy.yaml already exists in %s (not modified)\n", absDir)
		return nil
	}
	if err := os.WriteFile(cfgPath, artifacts.ProxyConfig, 0o644); err != nil {
		return fmt.Errorf("write proxy.yaml: %w", err)
	}
	fmt.Printf("wrote %s\n", cfgPath)
	return nil
}
