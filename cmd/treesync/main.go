// Package main is the entry point for the treesync command.
package main

import (
	"fmt"
	"os"

	"github.com/chmouel/treesync/internal/buildinfo"
	urfavecli "github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	buildinfo.Set(version, commit, date, builtBy)

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newApp() *urfavecli.App {
	urfavecli.VersionPrinter = func(c *urfavecli.Context) {
		fmt.Fprintln(c.App.Writer, buildinfo.Get())
	}

	return &urfavecli.App{
		Name:                 "treesync",
		Usage:                "Keep a live view of a git working tree's status and diffs",
		Version:              version,
		EnableBashCompletion: true,

		Flags: globalFlags(),

		Commands: []*urfavecli.Command{
			statusCommand(),
			summaryCommand(),
			diffCommand(),
			watchCommand(),
			stageCommand(),
			unstageCommand(),
		},

		Before: setup,
		After:  teardown,
	}
}
