// Package main is the scribe entry point.
package main

import (
	"os"

	"github.com/thebtf/scribe/internal/cli"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cli.SetVersionInfo(version, commit)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
