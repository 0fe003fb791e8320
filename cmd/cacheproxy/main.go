package main

import (
	"fmt"
	"os"

	"cachefs/internal/cli/proxycmd"
)

// Set by goreleaser ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	proxycmd.SetVersion(version, commit, date)
	if err := proxycmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
