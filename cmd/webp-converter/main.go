// Package main is the entry point for the webp-converter CLI.
//
// The binary serves the JPEG to WebP upload form, converts local files, and
// renders and builds its own container image. All functionality lives in
// internal/cli.
//
// Build-time variables (version, commit, date) are injected via ldflags.
// During development they default to "dev", "none", and "unknown".
package main

import (
	"github.com/addiskers/webp/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
