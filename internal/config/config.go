// Package config loads treesync configuration from YAML, git config and CLI overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/chmouel/treesync/internal/log"
	"github.com/chmouel/treesync/internal/utils"
	"github.com/chmouel/treesync/internal/watch"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by the backend key.
const (
	BackendExec  = "exec"
	BackendGoGit = "gogit"
)

// Config defines the treesync configuration options.
type Config struct {
	DebounceMS           int    // quiet window for filesystem events
	RefreshDebounceMS    int    // delay between a refresh request and the status run
	CacheTTLMS           int    // how long a status snapshot is served from cache
	GitPath              string // git binary, looked up in PATH when not absolute
	Backend              string // "exec" or "gogit"
	DebugLog             string
	Theme                string // empty picks one from the terminal background
	IgnoredMetadataPaths []string
	IgnoredExtensions    []string
	TempSuffixes         []string
	WatchEnabled         bool
}

// DefaultConfig returns the default configuration values.
func DefaultConfig() *Config {
	filter := watch.DefaultFilter()
	return &Config{
		DebounceMS:           int(watch.DefaultDebounce / time.Millisecond),
		RefreshDebounceMS:    500,
		CacheTTLMS:           2000,
		GitPath:              "git",
		Backend:              BackendExec,
		IgnoredMetadataPaths: filter.IgnoredMetadataPaths,
		IgnoredExtensions:    filter.IgnoredExtensions,
		TempSuffixes:         filter.TempSuffixes,
		WatchEnabled:         true,
	}
}

// Debounce returns the filesystem event debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// RefreshDebounce returns the refresh request debounce window.
func (c *Config) RefreshDebounce() time.Duration {
	return time.Duration(c.RefreshDebounceMS) * time.Millisecond
}

// CacheTTL returns the status cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMS) * time.Millisecond
}

// Filter returns the notifier filter described by the configuration.
func (c *Config) Filter() watch.Filter {
	return watch.Filter{
		IgnoredMetadataPaths: append([]string{}, c.IgnoredMetadataPaths...),
		IgnoredExtensions:    append([]string{}, c.IgnoredExtensions...),
		TempSuffixes:         append([]string{}, c.TempSuffixes...),
	}
}

// normalizeList converts a YAML scalar or sequence to a list of strings.
// Scalars are split on commas and whitespace.
func normalizeList(value any) []string {
	if value == nil {
		return []string{}
	}

	switch v := value.(type) {
	case string:
		return strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})
	case []any:
		items := []string{}
		for _, item := range v {
			if item == nil {
				continue
			}
			text := strings.TrimSpace(fmt.Sprintf("%v", item))
			if text != "" {
				items = append(items, text)
			}
		}
		return items
	}
	return []string{}
}

func coerceBool(value any, defaultVal bool) bool {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		text := strings.ToLower(strings.TrimSpace(v))
		switch text {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultVal
}

func coerceInt(value any, defaultVal int) int {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return defaultVal
	case int:
		return v
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return defaultVal
		}
		if i, err := strconv.Atoi(text); err == nil {
			return i
		}
	}
	return defaultVal
}

// coerceDurationMS accepts non-negative milliseconds; anything else keeps the current value.
func coerceDurationMS(value any, current int) int {
	ms := coerceInt(value, current)
	if ms < 0 {
		return current
	}
	return ms
}

func parseConfig(data map[string]any) *Config {
	cfg := DefaultConfig()
	applyConfigData(cfg, data)
	return cfg
}

// applyConfigData overlays the keys present in data onto cfg.
func applyConfigData(cfg *Config, data map[string]any) {
	if v, ok := data["debounce_ms"]; ok {
		cfg.DebounceMS = coerceDurationMS(v, cfg.DebounceMS)
	}
	if v, ok := data["refresh_debounce_ms"]; ok {
		cfg.RefreshDebounceMS = coerceDurationMS(v, cfg.RefreshDebounceMS)
	}
	if v, ok := data["cache_ttl_ms"]; ok {
		cfg.CacheTTLMS = coerceDurationMS(v, cfg.CacheTTLMS)
	}

	if gitPath, ok := data["git_path"].(string); ok {
		gitPath = strings.TrimSpace(gitPath)
		if gitPath != "" {
			cfg.GitPath = gitPath
		}
	}
	if backend, ok := data["backend"].(string); ok {
		backend = strings.ToLower(strings.TrimSpace(backend))
		switch backend {
		case BackendExec, BackendGoGit:
			cfg.Backend = backend
		case "":
		default:
			log.Warnf("config: unknown backend %q, keeping %q", backend, cfg.Backend)
		}
	}
	if debugLog, ok := data["debug_log"].(string); ok {
		debugLog = strings.TrimSpace(debugLog)
		if debugLog != "" {
			cfg.DebugLog = debugLog
		}
	}

	if name, ok := data["theme"].(string); ok {
		cfg.Theme = strings.ToLower(strings.TrimSpace(name))
	}

	if v, ok := data["ignored_metadata_paths"]; ok {
		cfg.IgnoredMetadataPaths = normalizeList(v)
	}
	if v, ok := data["ignored_extensions"]; ok {
		cfg.IgnoredExtensions = normalizeList(v)
	}
	if v, ok := data["temp_suffixes"]; ok {
		cfg.TempSuffixes = normalizeList(v)
	}
	if v, ok := data["watch_enabled"]; ok {
		cfg.WatchEnabled = coerceBool(v, cfg.WatchEnabled)
	}
}

func getConfigDir() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

// LoadConfig reads the YAML configuration, then layers the global and
// repository git config (ts.* keys) on top. An explicit configPath must live
// inside the treesync config directory. repoPath may be empty.
func LoadConfig(configPath, repoPath string) (*Config, error) {
	configBase := filepath.Clean(filepath.Join(getConfigDir(), "treesync"))

	var paths []string
	if configPath != "" {
		expanded, err := utils.ExpandPath(configPath)
		if err != nil {
			return DefaultConfig(), err
		}
		absPath, err := filepath.Abs(expanded)
		if err != nil {
			return DefaultConfig(), err
		}
		if !utils.IsPathWithin(configBase, absPath) {
			return DefaultConfig(), fmt.Errorf("config path must reside inside %s", configBase)
		}
		paths = []string{absPath}
	} else {
		paths = []string{
			filepath.Join(configBase, "config.yaml"),
			filepath.Join(configBase, "config.yml"),
		}
	}

	cfg := DefaultConfig()
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		// #nosec G304 -- path is constrained to the config directory after validation
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var yamlData map[string]any
		if err := yaml.Unmarshal(data, &yamlData); err != nil {
			log.Warnf("config: ignoring %s: %v", path, err)
			break
		}
		applyConfigData(cfg, yamlData)
		break
	}

	if global, err := loadGitConfig(true, ""); err != nil {
		log.Printf("config: global git config unavailable: %v", err)
	} else {
		applyConfigData(cfg, global)
	}
	if repo := determineRepoPath(repoPath); repo != "" {
		if local, err := loadGitConfig(false, repo); err != nil {
			log.Printf("config: local git config unavailable: %v", err)
		} else {
			applyConfigData(cfg, local)
		}
	}

	return cfg, nil
}

// ApplyCLIOverrides applies --config ts.key=value overrides on top of cfg.
func (c *Config) ApplyCLIOverrides(overrides []string) error {
	data, err := parseCLIConfigOverrides(overrides)
	if err != nil {
		return err
	}
	applyConfigData(c, data)
	return nil
}
