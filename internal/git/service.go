// Package git parses git status and diff output and runs git commands for treesync.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
)

// LookupPath is used to find executables in PATH. It's exposed as a package variable
// so tests can mock it and avoid depending on system binaries being installed.
var LookupPath = exec.LookPath

// CommandError is returned when a git invocation fails. ExitCode is -1 when
// the process could not be started at all.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	command := "git " + strings.Join(e.Args, " ")
	switch {
	case e.ExitCode < 0:
		return fmt.Sprintf("%s: %v", command, e.Err)
	case e.Stderr != "":
		return fmt.Sprintf("%s: exit %d: %s", command, e.ExitCode, e.Stderr)
	default:
		return fmt.Sprintf("%s: exit %d", command, e.ExitCode)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Service runs git in a fixed working directory and returns its stdout.
// Concurrent invocations are bounded by a counting semaphore.
type Service struct {
	gitPath   string
	dir       string
	semaphore chan struct{}
	logf      func(string, ...any)
}

// NewService constructs a Service for the repository at dir. An empty gitPath
// means "git" from PATH.
func NewService(gitPath, dir string, logf func(string, ...any)) *Service {
	limit := runtime.NumCPU() * 2
	if limit < 4 {
		limit = 4
	}
	if limit > 32 {
		limit = 32
	}

	// Channel starts full; acquire takes a token, release puts it back.
	semaphore := make(chan struct{}, limit)
	for i := 0; i < limit; i++ {
		semaphore <- struct{}{}
	}

	gitPath = strings.TrimSpace(gitPath)
	if gitPath == "" {
		gitPath = "git"
	}

	return &Service{
		gitPath:   gitPath,
		dir:       dir,
		semaphore: semaphore,
		logf:      logf,
	}
}

// Dir returns the working directory commands run in.
func (s *Service) Dir() string {
	return s.dir
}

// Available reports whether the configured git binary can be found.
func (s *Service) Available() bool {
	_, err := LookupPath(s.gitPath)
	return err == nil
}

func (s *Service) debugf(format string, args ...any) {
	if s.logf == nil {
		return
	}
	s.logf(format, args...)
}

func (s *Service) acquireSemaphore(ctx context.Context) error {
	select {
	case <-s.semaphore:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) releaseSemaphore() {
	s.semaphore <- struct{}{}
}

// Run executes git with args and returns stdout. Any non-zero exit is a
// *CommandError carrying the exit code and trimmed stderr.
func (s *Service) Run(ctx context.Context, args ...string) (string, error) {
	command := strings.Join(args, " ")
	if command == "" {
		command = "<empty>"
	}

	if err := s.acquireSemaphore(ctx); err != nil {
		return "", err
	}
	defer s.releaseSemaphore()

	s.debugf("exec: git %s (cwd=%s)", command, s.dir)

	// #nosec G204 -- arguments come from internal call sites and are not shell interpolated
	cmd := exec.CommandContext(ctx, s.gitPath, args...)
	if s.dir != "" {
		cmd.Dir = s.dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr := &CommandError{
				Args:     append([]string(nil), args...),
				ExitCode: exitErr.ExitCode(),
				Stderr:   redactCredentials(strings.TrimSpace(stderr.String())),
				Err:      err,
			}
			s.debugf("exec: error: %v", cmdErr)
			return "", cmdErr
		}
		cmdErr := &CommandError{Args: append([]string(nil), args...), ExitCode: -1, Err: err}
		s.debugf("exec: error: %v", cmdErr)
		return "", cmdErr
	}

	s.debugf("exec: ok: git %s", command)
	return stdout.String(), nil
}

var (
	credentialURLRe = regexp.MustCompile(`https?://[^\s@/]+@`)
	secretParamRe   = regexp.MustCompile(`(?i)(token|secret|password|passwd|bearer)=[^\s]+`)
)

// redactCredentials removes credentials embedded in URLs or key=value pairs.
func redactCredentials(s string) string {
	s = credentialURLRe.ReplaceAllString(s, "https://<redacted>@")
	return secretParamRe.ReplaceAllString(s, "$1=<redacted>")
}
