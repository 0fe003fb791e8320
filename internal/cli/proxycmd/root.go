// Package proxycmd is the cacheproxy command tree, grounded in the teacher's
// internal/cli/commands root/version pattern.
package proxycmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cacheproxy",
	Short: "Local cache proxy for the cachesrv protocol",
	Long:  `cacheproxy caches file contents on local disk and coordinates with cachesrv under AFS-style open/close session semantics.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to proxy config YAML (default: none, flags/defaults only)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("cacheproxy version {{.Version}}\n")
}

// SetVersion sets the version info shown by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = versionString()
}

func versionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
