package main

import (
	"fmt"
	"os"

	"cachefs/internal/cli/servercmd"
)

// Set by goreleaser ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	servercmd.SetVersion(version, commit, date)
	if err := servercmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
