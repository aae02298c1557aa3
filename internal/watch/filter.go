package watch

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/chmouel/treesync/internal/models"
)

// Filter decides which raw filesystem events are worth queueing.
// Paths are matched relative to the watched root using forward slashes.
type Filter struct {
	// IgnoredMetadataPaths are root-relative subtrees that never affect visible state.
	IgnoredMetadataPaths []string
	// IgnoredExtensions are filename suffixes of transient, lock and swap files.
	IgnoredExtensions []string
	// TempSuffixes reject dotfiles ending in one of them.
	TempSuffixes []string
}

// DefaultFilter returns the filter used when none is configured.
func DefaultFilter() Filter {
	return Filter{
		IgnoredMetadataPaths: []string{".git/objects", ".git/logs", ".git/lfs"},
		IgnoredExtensions:    []string{".lock", ".swp", ".swo", ".swx", ".tmp", ".temp", ".bak", ".orig", "~"},
		TempSuffixes:         []string{".tmp", ".swp", "~", "-journal"},
	}
}

func (f Filter) isZero() bool {
	return f.IgnoredMetadataPaths == nil && f.IgnoredExtensions == nil && f.TempSuffixes == nil
}

// Accept reports whether an event at rel carrying flags should be queued.
func (f Filter) Accept(rel string, flags models.ChangeFlags) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
		return false
	}
	if f.ignoredSubtree(rel) {
		return false
	}

	base := strings.ToLower(path.Base(rel))
	for _, ext := range f.IgnoredExtensions {
		if ext != "" && strings.HasSuffix(base, strings.ToLower(ext)) {
			return false
		}
	}
	if strings.HasPrefix(base, ".") {
		if strings.HasPrefix(base, ".#") {
			return false
		}
		for _, suffix := range f.TempSuffixes {
			if suffix != "" && strings.HasSuffix(base, strings.ToLower(suffix)) {
				return false
			}
		}
	}

	return flags&(models.FlagCreated|models.FlagModified|models.FlagRemoved|
		models.FlagRenamed|models.FlagIsFile|models.FlagIsDir) != 0
}

// SkipDir reports whether the directory at rel should not be watched at all.
func (f Filter) SkipDir(rel string) bool {
	return f.ignoredSubtree(filepath.ToSlash(rel))
}

func (f Filter) ignoredSubtree(rel string) bool {
	for _, p := range f.IgnoredMetadataPaths {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p == "" {
			continue
		}
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}
