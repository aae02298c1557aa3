package git

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
)

// Runner is the minimal command executor shape shared by the backends.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// GoGitExecutor answers status requests in-process with go-git and hands
// every other command to a fallback runner.
type GoGitExecutor struct {
	dir      string
	fallback Runner

	mu   sync.Mutex
	repo *gogit.Repository
}

// NewGoGitExecutor creates an executor for the repository containing dir.
func NewGoGitExecutor(dir string, fallback Runner) *GoGitExecutor {
	return &GoGitExecutor{dir: dir, fallback: fallback}
}

// Run implements Runner.
func (g *GoGitExecutor) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) > 0 && args[0] == "status" {
		return g.status(ctx, args)
	}
	if g.fallback == nil {
		return "", &CommandError{Args: args, ExitCode: -1, Err: fmt.Errorf("go-git backend cannot run %q", strings.Join(args, " "))}
	}
	return g.fallback.Run(ctx, args...)
}

func (g *GoGitExecutor) open() (*gogit.Repository, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.repo != nil {
		return g.repo, nil
	}
	repo, err := gogit.PlainOpenWithOptions(g.dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, err
	}
	g.repo = repo
	return repo, nil
}

func (g *GoGitExecutor) status(ctx context.Context, args []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	repo, err := g.open()
	if err != nil {
		return "", &CommandError{Args: args, ExitCode: 128, Stderr: err.Error(), Err: err}
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", &CommandError{Args: args, ExitCode: 128, Stderr: err.Error(), Err: err}
	}
	st, err := wt.Status()
	if err != nil {
		return "", &CommandError{Args: args, ExitCode: 128, Stderr: err.Error(), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return renderPorcelain(st), nil
}

// renderPorcelain turns a go-git status into porcelain v1 text, sorted by path.
func renderPorcelain(st gogit.Status) string {
	paths := make([]string, 0, len(st))
	for path, fs := range st {
		if fs.Staging == gogit.Unmodified && fs.Worktree == gogit.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, path := range paths {
		fs := st[path]
		if fs.Staging == gogit.Untracked || fs.Worktree == gogit.Untracked {
			fmt.Fprintf(&b, "?? %s\n", quoteIfNeeded(path))
			continue
		}
		if (fs.Staging == gogit.Renamed || fs.Staging == gogit.Copied) && fs.Extra != "" {
			fmt.Fprintf(&b, "%c%c %s -> %s\n", fs.Staging, fs.Worktree, quoteIfNeeded(fs.Extra), quoteIfNeeded(path))
			continue
		}
		fmt.Fprintf(&b, "%c%c %s\n", fs.Staging, fs.Worktree, quoteIfNeeded(path))
	}
	return b.String()
}

func quoteIfNeeded(path string) string {
	if strings.ContainsAny(path, "\"\\\t\n") || strings.Contains(path, renameArrow) {
		return fmt.Sprintf("%q", path)
	}
	return path
}
