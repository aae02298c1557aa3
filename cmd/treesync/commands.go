package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chmouel/treesync/internal/git"
	"github.com/chmouel/treesync/internal/syncer"
	urfavecli "github.com/urfave/cli/v2"
)

func statusCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "status",
		Usage: "Print the working tree status",
		Flags: []urfavecli.Flag{
			&urfavecli.BoolFlag{
				Name:  "no-cache",
				Usage: "Always run git instead of serving a recent snapshot",
			},
			&urfavecli.BoolFlag{
				Name:  "porcelain",
				Usage: "Print porcelain v1 lines even on a terminal",
			},
		},
		Action: runStatus,
	}
}

func summaryCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:   "summary",
		Usage:  "Print change counts for the working tree",
		Action: runSummary,
	}
}

func diffCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "diff",
		Usage:     "Print the diff of one file, given relative to the repository top level",
		ArgsUsage: "<path>",
		Flags: []urfavecli.Flag{
			&urfavecli.BoolFlag{
				Name:  "staged",
				Usage: "Compare the index against HEAD instead of the working tree against the index",
			},
		},
		Action: runDiff,
	}
}

func watchCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "watch",
		Usage: "Watch the working tree and print every status change",
		Flags: []urfavecli.Flag{
			&urfavecli.IntFlag{
				Name:  "max-updates",
				Usage: "Exit after this many updates (0 waits for an interrupt)",
			},
		},
		Action: runWatch,
	}
}

func stageCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "stage",
		Usage:     "Add paths to the index",
		ArgsUsage: "<path>...",
		Action: func(c *urfavecli.Context) error {
			return runMutation(c, (*syncer.Orchestrator).Stage)
		},
	}
}

func unstageCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "unstage",
		Usage:     "Remove paths from the index, keeping working tree changes",
		ArgsUsage: "<path>...",
		Action: func(c *urfavecli.Context) error {
			return runMutation(c, (*syncer.Orchestrator).Unstage)
		},
	}
}

func openOrchestrator(c *urfavecli.Context) (*session, *syncer.Orchestrator, error) {
	s, err := sessionFrom(c)
	if err != nil {
		return nil, nil, err
	}
	orch, err := s.open(c.Context)
	if err != nil {
		return nil, nil, err
	}
	return s, orch, nil
}

func runStatus(c *urfavecli.Context) error {
	s, orch, err := openOrchestrator(c)
	if err != nil {
		return err
	}
	entries, err := orch.GetStatus(c.Context, !c.Bool("no-cache"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	_, isTTY := terminalWidth(out)
	if c.Bool("porcelain") || !isTTY {
		_, err = io.WriteString(out, git.FormatStatus(entries))
		return err
	}
	return renderStatus(out, entries, s.palette(true))
}

func runSummary(c *urfavecli.Context) error {
	_, orch, err := openOrchestrator(c)
	if err != nil {
		return err
	}
	summary, err := orch.GetSummary(c.Context)
	if err != nil {
		return err
	}
	return renderSummary(c.App.Writer, summary)
}

func runDiff(c *urfavecli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: treesync diff [--staged] <path>")
	}
	path := c.Args().First()

	s, orch, err := openOrchestrator(c)
	if err != nil {
		return err
	}
	fd, err := orch.GetDiff(c.Context, path, c.Bool("staged"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if fd == nil {
		_, err = fmt.Fprintf(out, "no changes for %s\n", path)
		return err
	}
	width, isTTY := terminalWidth(out)
	return renderDiff(out, fd, s.palette(isTTY), width)
}

func runWatch(c *urfavecli.Context) error {
	s, orch, err := openOrchestrator(c)
	if err != nil {
		return err
	}
	if !s.cfg.WatchEnabled {
		return errors.New("watching is disabled by configuration (ts.watch_enabled)")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.StartWatching(ctx); err != nil {
		return err
	}
	defer orch.StopWatching()
	orch.RequestRefresh()

	out := c.App.Writer
	_, isTTY := terminalWidth(out)
	pal := s.palette(isTTY)
	limit := c.Int("max-updates")
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-orch.Updates():
			if !ok {
				return nil
			}
			if err := renderUpdate(out, u, pal); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}

func runMutation(c *urfavecli.Context, op func(*syncer.Orchestrator, context.Context, ...string) error) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: treesync %s <path>...", c.Command.Name)
	}
	_, orch, err := openOrchestrator(c)
	if err != nil {
		return err
	}
	return op(orch, c.Context, c.Args().Slice()...)
}
