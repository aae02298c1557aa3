package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chmouel/treesync/internal/config"
	"github.com/chmouel/treesync/internal/git"
	"github.com/chmouel/treesync/internal/log"
	"github.com/chmouel/treesync/internal/syncer"
	"github.com/chmouel/treesync/internal/theme"
	"github.com/chmouel/treesync/internal/utils"
	"github.com/chmouel/treesync/internal/watch"
	urfavecli "github.com/urfave/cli/v2"
)

const sessionKey = "treesync.session"

var (
	loadConfigFunc  = config.LoadConfig
	newExecutorFunc = newExecutor
)

// session carries the state shared by every command of one invocation.
type session struct {
	cfg  *config.Config
	repo string
	reg  *syncer.Registry
}

// newExecutor builds the git executor selected by the configuration.
func newExecutor(cfg *config.Config, dir string) syncer.Executor {
	svc := git.NewService(cfg.GitPath, dir, log.Printf)
	if cfg.Backend == config.BackendGoGit {
		return git.NewGoGitExecutor(dir, svc)
	}
	return svc
}

func orchestratorOptions(cfg *config.Config, root string) syncer.Options {
	return syncer.Options{
		Root:            root,
		CacheTTL:        cfg.CacheTTL(),
		RefreshDebounce: cfg.RefreshDebounce(),
		Watch: watch.Options{
			Debounce: cfg.Debounce(),
			Filter:   cfg.Filter(),
			Logf:     log.Printf,
		},
		Logf: log.Printf,
	}
}

func setDebugLog(path string) error {
	expanded, err := utils.ExpandPath(path)
	if err != nil {
		expanded = path
	}
	if err := log.SetFile(expanded); err != nil {
		return fmt.Errorf("error opening debug log file %q: %w", expanded, err)
	}
	return nil
}

// setup runs before every command: logging first, then configuration.
func setup(c *urfavecli.Context) error {
	debugFlag := c.String("debug-log")
	if debugFlag != "" {
		if err := setDebugLog(debugFlag); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "%v\n", err)
		}
	}

	repo := c.String("repo")
	if repo == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		repo = wd
	}
	expanded, err := utils.ExpandPath(repo)
	if err != nil {
		return err
	}
	repo, err = filepath.Abs(expanded)
	if err != nil {
		return err
	}

	cfg, err := loadConfigFunc(c.String("config-file"), repo)
	if err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Error loading config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if overrides := c.StringSlice("config"); len(overrides) > 0 {
		if err := cfg.ApplyCLIOverrides(overrides); err != nil {
			return fmt.Errorf("error applying config overrides: %w", err)
		}
	}

	if debugFlag == "" {
		if cfg.DebugLog != "" {
			if err := setDebugLog(cfg.DebugLog); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "%v\n", err)
			}
		} else {
			// No debug log configured, discard any buffered logs
			_ = log.SetFile("")
		}
	}

	if name := strings.ToLower(c.String("theme")); name != "" {
		cfg.Theme = name
	}
	if cfg.Theme != "" && !theme.Known(cfg.Theme) {
		return fmt.Errorf("unknown theme %q", cfg.Theme)
	}

	s := &session{cfg: cfg, repo: repo}
	s.reg = syncer.NewRegistry(func(root string) (*syncer.Orchestrator, error) {
		return syncer.New(newExecutorFunc(cfg, root), orchestratorOptions(cfg, root))
	})

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[sessionKey] = s
	log.Printf("treesync: repo=%s backend=%s", repo, cfg.Backend)
	return nil
}

// teardown closes every orchestrator and flushes the debug log.
func teardown(c *urfavecli.Context) error {
	if s, ok := c.App.Metadata[sessionKey].(*session); ok {
		s.reg.CloseAll()
	}
	if err := log.Close(); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Error closing debug log: %v\n", err)
	}
	return nil
}

func sessionFrom(c *urfavecli.Context) (*session, error) {
	s, ok := c.App.Metadata[sessionKey].(*session)
	if !ok {
		return nil, errors.New("treesync: session not initialised")
	}
	return s, nil
}

// open returns the orchestrator for the repository top level, falling back to
// the requested directory when git cannot tell.
func (s *session) open(ctx context.Context) (*syncer.Orchestrator, error) {
	root := s.repo
	out, err := newExecutorFunc(s.cfg, s.repo).Run(ctx, "rev-parse", "--show-toplevel")
	if err == nil {
		if top := strings.TrimSpace(out); top != "" {
			root = top
		}
	} else {
		log.Printf("treesync: rev-parse in %s: %v", s.repo, err)
	}
	return s.reg.Open(root)
}

// palette returns nil when colour is off.
func (s *session) palette(color bool) *theme.Theme {
	if !color {
		return nil
	}
	name := s.cfg.Theme
	if name == "" {
		name = theme.DefaultName()
	}
	return theme.GetTheme(name)
}
