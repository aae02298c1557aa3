package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chmouel/treesync/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noGitConfig stubs git config lookups so tests never read the host configuration.
func noGitConfig(t *testing.T) {
	t.Helper()
	gitConfigMock = func([]string, string) (string, error) { return "", nil }
	t.Cleanup(func() { gitConfigMock = nil })
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 500, cfg.DebounceMS)
	assert.Equal(t, 500, cfg.RefreshDebounceMS)
	assert.Equal(t, 2000, cfg.CacheTTLMS)
	assert.Equal(t, "git", cfg.GitPath)
	assert.Equal(t, BackendExec, cfg.Backend)
	assert.True(t, cfg.WatchEnabled)
	assert.Empty(t, cfg.DebugLog)
	assert.Equal(t, watch.DefaultFilter(), cfg.Filter())

	assert.Equal(t, 500*time.Millisecond, cfg.Debounce())
	assert.Equal(t, 500*time.Millisecond, cfg.RefreshDebounce())
	assert.Equal(t, 2*time.Second, cfg.CacheTTL())
}

func TestFilterReturnsCopies(t *testing.T) {
	cfg := DefaultConfig()
	f := cfg.Filter()
	f.IgnoredExtensions[0] = ".changed"
	assert.Equal(t, ".lock", cfg.IgnoredExtensions[0])
}

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"nil", nil, []string{}},
		{"comma separated", ".log, .tmp,.bak", []string{".log", ".tmp", ".bak"}},
		{"whitespace separated", ".git/objects .git/logs", []string{".git/objects", ".git/logs"}},
		{"empty string", "  ", []string{}},
		{"sequence", []any{".a", nil, "  ", 7}, []string{".a", "7"}},
		{"unsupported", 12, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeList(tt.input))
		})
	}
}

func TestCoerceBool(t *testing.T) {
	tests := []struct {
		input      any
		defaultVal bool
		want       bool
	}{
		{nil, true, true},
		{true, false, true},
		{0, true, false},
		{2, false, true},
		{"yes", false, true},
		{" OFF ", true, false},
		{"maybe", true, true},
		{1.5, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coerceBool(tt.input, tt.defaultVal), "%v", tt.input)
	}
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		input      any
		defaultVal int
		want       int
	}{
		{nil, 5, 5},
		{42, 5, 42},
		{"17", 5, 17},
		{" ", 5, 5},
		{"abc", 5, 5},
		{true, 5, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coerceInt(tt.input, tt.defaultVal), "%v", tt.input)
	}
	assert.Equal(t, 300, coerceDurationMS(-1, 300))
	assert.Equal(t, 0, coerceDurationMS(0, 300))
}

func TestParseConfig(t *testing.T) {
	t.Run("all keys", func(t *testing.T) {
		cfg := parseConfig(map[string]any{
			"debounce_ms":            250,
			"refresh_debounce_ms":    "100",
			"cache_ttl_ms":           0,
			"git_path":               " /usr/local/bin/git ",
			"backend":                "GoGit",
			"debug_log":              "/tmp/treesync.log",
			"theme":                  " Nord ",
			"ignored_metadata_paths": []any{".git/objects"},
			"ignored_extensions":     ".log,.tmp",
			"temp_suffixes":          []any{},
			"watch_enabled":          "no",
		})
		assert.Equal(t, 250, cfg.DebounceMS)
		assert.Equal(t, 100, cfg.RefreshDebounceMS)
		assert.Equal(t, 0, cfg.CacheTTLMS)
		assert.Equal(t, "/usr/local/bin/git", cfg.GitPath)
		assert.Equal(t, BackendGoGit, cfg.Backend)
		assert.Equal(t, "/tmp/treesync.log", cfg.DebugLog)
		assert.Equal(t, "nord", cfg.Theme)
		assert.Equal(t, []string{".git/objects"}, cfg.IgnoredMetadataPaths)
		assert.Equal(t, []string{".log", ".tmp"}, cfg.IgnoredExtensions)
		assert.Equal(t, []string{}, cfg.TempSuffixes)
		assert.False(t, cfg.WatchEnabled)
	})

	t.Run("invalid values keep defaults", func(t *testing.T) {
		cfg := parseConfig(map[string]any{
			"debounce_ms": -5,
			"backend":     "svn",
			"git_path":    "  ",
			"debug_log":   42,
		})
		def := DefaultConfig()
		assert.Equal(t, def.DebounceMS, cfg.DebounceMS)
		assert.Equal(t, def.Backend, cfg.Backend)
		assert.Equal(t, def.GitPath, cfg.GitPath)
		assert.Empty(t, cfg.DebugLog)
	})

	t.Run("empty map", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), parseConfig(map[string]any{}))
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("no config file returns defaults", func(t *testing.T) {
		noGitConfig(t)
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)

		cfg, err := LoadConfig("", "")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("valid config file", func(t *testing.T) {
		noGitConfig(t)
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
		configPath := filepath.Join(tmpDir, "treesync", "config.yaml")

		yamlContent := `debounce_ms: 300
cache_ttl_ms: 5000
backend: gogit
ignored_extensions:
  - .log
  - .lock
watch_enabled: false
`
		require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o750))
		require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

		cfg, err := LoadConfig(configPath, "")
		require.NoError(t, err)
		assert.Equal(t, 300, cfg.DebounceMS)
		assert.Equal(t, 5000, cfg.CacheTTLMS)
		assert.Equal(t, BackendGoGit, cfg.Backend)
		assert.Equal(t, []string{".log", ".lock"}, cfg.IgnoredExtensions)
		assert.False(t, cfg.WatchEnabled)

		// the default location is found without an explicit path
		cfg, err = LoadConfig("", "")
		require.NoError(t, err)
		assert.Equal(t, 300, cfg.DebounceMS)
	})

	t.Run("yml fallback", func(t *testing.T) {
		noGitConfig(t)
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
		configPath := filepath.Join(tmpDir, "treesync", "config.yml")
		require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o750))
		require.NoError(t, os.WriteFile(configPath, []byte("git_path: /opt/git\n"), 0o600))

		cfg, err := LoadConfig("", "")
		require.NoError(t, err)
		assert.Equal(t, "/opt/git", cfg.GitPath)
	})

	t.Run("invalid YAML returns defaults", func(t *testing.T) {
		noGitConfig(t)
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
		configPath := filepath.Join(tmpDir, "treesync", "config.yaml")
		require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o750))
		require.NoError(t, os.WriteFile(configPath, []byte("invalid: [[["), 0o600))

		cfg, err := LoadConfig(configPath, "")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("path outside config dir is rejected", func(t *testing.T) {
		noGitConfig(t)
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		outside := filepath.Join(t.TempDir(), "config.yaml")

		cfg, err := LoadConfig(outside, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must reside inside")
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("git config layers over yaml", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", tmpDir)
		configPath := filepath.Join(tmpDir, "treesync", "config.yaml")
		require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o750))
		require.NoError(t, os.WriteFile(configPath, []byte("debounce_ms: 300\ncache_ttl_ms: 900\n"), 0o600))

		repo := t.TempDir()
		gitConfigMock = func(args []string, repoPath string) (string, error) {
			switch {
			case args[0] == "rev-parse":
				return ".git", nil
			case args[len(args)-1] == "--global":
				return "ts.debounce_ms 200\nts.backend gogit\n", nil
			case repoPath == repo:
				return "ts.debounce_ms 100\nts.temp_suffixes .part\nts.temp_suffixes .crdownload\n", nil
			}
			return "", nil
		}
		t.Cleanup(func() { gitConfigMock = nil })

		cfg, err := LoadConfig("", repo)
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.DebounceMS)
		assert.Equal(t, 900, cfg.CacheTTLMS)
		assert.Equal(t, BackendGoGit, cfg.Backend)
		assert.Equal(t, []string{".part", ".crdownload"}, cfg.TempSuffixes)
	})
}

func TestApplyCLIOverrides(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyCLIOverrides([]string{
		"ts.debounce_ms=50",
		"ts.watch_enabled=off",
		"ts.ignored_extensions=.log",
		"ts.ignored_extensions=.tmp",
	}))
	assert.Equal(t, 50, cfg.DebounceMS)
	assert.False(t, cfg.WatchEnabled)
	assert.Equal(t, []string{".log", ".tmp"}, cfg.IgnoredExtensions)

	err := cfg.ApplyCLIOverrides([]string{"debounce_ms=1"})
	require.Error(t, err)
	assert.Equal(t, 50, cfg.DebounceMS)
}
