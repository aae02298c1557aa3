package syncer

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/chmouel/treesync/internal/utils"
)

// metadataAllowList are the entries of the metadata directory whose changes
// alter what status reports. Descendants of a listed entry qualify too.
var metadataAllowList = []string{
	"HEAD",
	"index",
	"refs/heads",
	"refs/remotes",
	"refs/tags",
	"packed-refs",
	"MERGE_HEAD",
	"CHERRY_PICK_HEAD",
	"REVERT_HEAD",
	"rebase-merge",
	"rebase-apply",
}

// commonAllowList applies to the common directory of a linked worktree,
// which holds the refs shared by every worktree.
var commonAllowList = []string{
	"refs/heads",
	"refs/remotes",
	"refs/tags",
	"packed-refs",
}

var branchPaths = []string{"HEAD", "refs/heads"}

type relevance struct {
	root    string
	metaDir string

	// commonDir equals metaDir outside linked worktrees.
	commonDir string
}

// shouldRefresh applies the refresh rules to an absolute path.
func (r relevance) shouldRefresh(path string) bool {
	if path == "" {
		return false
	}
	if rel, ok := utils.RelWithin(r.metaDir, path); ok {
		return matchesAny(rel, metadataAllowList)
	}
	if rel, ok := r.relCommon(path); ok {
		return matchesAny(rel, commonAllowList)
	}
	return utils.IsPathWithin(r.root, path)
}

// touchesBranch reports whether path moves the current branch or a local ref.
func (r relevance) touchesBranch(path string) bool {
	if rel, ok := utils.RelWithin(r.metaDir, path); ok {
		return matchesAny(rel, branchPaths)
	}
	rel, ok := r.relCommon(path)
	return ok && matchesAny(rel, []string{"refs/heads"})
}

func (r relevance) relCommon(path string) (string, bool) {
	if r.commonDir == "" || r.commonDir == r.metaDir {
		return "", false
	}
	return utils.RelWithin(r.commonDir, path)
}

// gitDirs returns the metadata directories that lie outside root, without
// listing a directory already covered by another.
func (r relevance) gitDirs() []string {
	var dirs []string
	for _, dir := range []string{r.commonDir, r.metaDir} {
		if dir == "" || utils.IsPathWithin(r.root, dir) {
			continue
		}
		covered := false
		for _, d := range dirs {
			if utils.IsPathWithin(d, dir) {
				covered = true
				break
			}
		}
		if !covered {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func matchesAny(rel string, list []string) bool {
	rel = filepath.ToSlash(rel)
	for _, entry := range list {
		if rel == entry || strings.HasPrefix(rel, entry+"/") {
			return true
		}
	}
	return false
}

// resolveMetadataDir returns the git directory of the worktree at root.
// A .git file (linked worktree, submodule) is followed through its gitdir line.
func resolveMetadataDir(root string) string {
	dotGit := filepath.Join(root, ".git")
	info, err := os.Stat(dotGit)
	if err != nil || info.IsDir() {
		return dotGit
	}

	f, err := os.Open(dotGit) // #nosec G304 -- fixed name under the repository root
	if err != nil {
		return dotGit
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		target, ok := strings.CutPrefix(line, "gitdir:")
		if !ok {
			continue
		}
		target = strings.TrimSpace(target)
		if target == "" {
			break
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, target)
		}
		return filepath.Clean(target)
	}
	return dotGit
}

// resolveCommonDir follows the commondir file of a linked worktree's git
// directory. It returns metaDir when there is none.
func resolveCommonDir(metaDir string) string {
	data, err := os.ReadFile(filepath.Join(metaDir, "commondir")) // #nosec G304 -- fixed name under the git directory
	if err != nil {
		return metaDir
	}
	target := strings.TrimSpace(string(data))
	if target == "" {
		return metaDir
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(metaDir, target)
	}
	return filepath.Clean(target)
}
