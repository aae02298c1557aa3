package config

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keyPrefix = "ts."

// gitConfigMock allows tests to mock git config output.
var gitConfigMock func(args []string, repoPath string) (string, error)

// runGitConfig executes git config command and returns raw output.
func runGitConfig(args []string, repoPath string) (string, error) {
	if gitConfigMock != nil {
		return gitConfigMock(args, repoPath)
	}

	cmd := exec.Command("git", args...)
	if repoPath != "" {
		cmd.Dir = repoPath
	}

	output, err := cmd.Output()
	if err != nil {
		// git config returns exit code 1 when key not found (not an error)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return string(output), nil
}

// parseGitConfigOutput parses git config output into multi-value map.
// Input format: "ts.debounce_ms 300\nts.ignored_extensions .log\n"
func parseGitConfigOutput(output string) map[string][]string {
	configMap := make(map[string][]string)
	if output == "" {
		return configMap
	}

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		// values may contain spaces
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		key = strings.TrimPrefix(key, keyPrefix)
		configMap[key] = append(configMap[key], value)
	}

	return configMap
}

// convertGitConfigToParseConfig converts to format expected by applyConfigData.
func convertGitConfigToParseConfig(gitCfg map[string][]string) map[string]any {
	result := make(map[string]any)

	for key, values := range gitCfg {
		if len(values) == 0 {
			continue
		}

		// Multi-value keys become arrays (e.g. ignored_extensions)
		if len(values) > 1 {
			anySlice := make([]any, len(values))
			for i, v := range values {
				anySlice[i] = v
			}
			result[key] = anySlice
			continue
		}

		// coerceBool/coerceInt handle the conversion of single values
		result[key] = values[0]
	}

	return result
}

// loadGitConfig reads ts.* git config values from the global or repository scope.
func loadGitConfig(globalOnly bool, repoPath string) (map[string]any, error) {
	args := []string{"config", "--get-regexp", `^ts\.`}

	if globalOnly {
		args = append(args, "--global")
	} else {
		args = append(args, "--local")
	}

	output, err := runGitConfig(args, repoPath)
	if err != nil {
		return nil, err
	}
	return convertGitConfigToParseConfig(parseGitConfigOutput(output)), nil
}

// isInGitRepo checks if path is in a git repository.
func isInGitRepo(path string) bool {
	if path == "" {
		return false
	}
	if gitConfigMock != nil {
		_, err := gitConfigMock([]string{"rev-parse", "--git-dir"}, path)
		return err == nil
	}
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = path
	return cmd.Run() == nil
}

// determineRepoPath returns the repository path for local git config lookup.
func determineRepoPath(repoPath string) string {
	if repoPath != "" && isInGitRepo(repoPath) {
		return repoPath
	}
	return ""
}

// parseCLIConfigOverrides parses --config=ts.key=value format.
// Returns a map suitable for applyConfigData.
func parseCLIConfigOverrides(overrides []string) (map[string]any, error) {
	result := make(map[string]any)
	keyCount := make(map[string]int)

	for _, override := range overrides {
		fullKey, value, ok := strings.Cut(override, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config override: %q, expected format: ts.key=value (note: use = not space)", override)
		}

		if !strings.HasPrefix(fullKey, keyPrefix) {
			return nil, fmt.Errorf("config override key must start with 'ts.': %q", fullKey)
		}

		key := strings.TrimPrefix(fullKey, keyPrefix)
		if key == "" {
			return nil, fmt.Errorf("empty config key in override: %q", override)
		}

		// Repeated keys become a list
		keyCount[key]++
		switch keyCount[key] {
		case 1:
			result[key] = value
		case 2:
			result[key] = []any{result[key], value}
		default:
			result[key] = append(result[key].([]any), value)
		}
	}

	return result, nil
}
