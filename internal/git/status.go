package git

import (
	"strconv"
	"strings"

	log "github.com/chmouel/treesync/internal/log"
	"github.com/chmouel/treesync/internal/models"
)

// StatusArgs are the arguments used to request a porcelain v1 status report.
var StatusArgs = []string{"status", "--porcelain=v1", "--untracked-files=all"}

const renameArrow = " -> "

// ParseStatus converts porcelain v1 status output into entries, one per
// non-blank line, in input order. Malformed lines are logged and skipped;
// unknown state codes decode as modified. It keeps no state between calls.
func ParseStatus(raw string) []models.StatusEntry {
	if raw == "" {
		return []models.StatusEntry{}
	}

	entries := make([]models.StatusEntry, 0, strings.Count(raw, "\n")+1)
	for n, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 3 {
			log.Warnf("status: skipping malformed line %d: %q", n+1, line)
			continue
		}
		entries = append(entries, parseStatusLine(line))
	}
	return entries
}

func parseStatusLine(line string) models.StatusEntry {
	code := line[:2]
	field := strings.TrimLeft(line[2:], " \t")

	switch code {
	case "??":
		return models.StatusEntry{
			Path:         unquotePath(field),
			IndexState:   models.Unmodified,
			WorkingState: models.Untracked,
		}
	case "!!":
		return models.StatusEntry{
			Path:         unquotePath(field),
			IndexState:   models.Unmodified,
			WorkingState: models.Ignored,
		}
	}

	entry := models.StatusEntry{
		IndexState:   decodeState(code[0]),
		WorkingState: decodeState(code[1]),
	}

	if entry.IndexState == models.Renamed || entry.IndexState == models.Copied {
		from, to, ok := strings.Cut(field, renameArrow)
		if ok {
			entry.RenamedFrom = unquotePath(from)
			entry.Path = unquotePath(to)
			return entry
		}
		// Keep the whole field rather than guessing where the old path ends.
		log.Warnf("status: %s marker without %q, keeping %q as path", entry.IndexState, strings.TrimSpace(renameArrow), field)
	}

	entry.Path = unquotePath(field)
	return entry
}

func decodeState(c byte) models.FileState {
	switch c {
	case ' ', '.':
		return models.Unmodified
	case 'A':
		return models.Added
	case 'M':
		return models.Modified
	case 'D':
		return models.Deleted
	case 'R':
		return models.Renamed
	case 'C':
		return models.Copied
	case 'U':
		return models.Unmerged
	case '?':
		return models.Untracked
	case '!':
		return models.Ignored
	case 'T':
		// type change has no state of its own
		return models.Modified
	default:
		log.Warnf("status: unknown state code %q, treating as modified", c)
		return models.Modified
	}
}

// unquotePath decodes git's C-style quoting of unusual paths and leaves
// anything it cannot decode untouched.
func unquotePath(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		if decoded, err := strconv.Unquote(p); err == nil {
			return decoded
		}
	}
	return p
}

// FormatStatus renders entries back into porcelain v1 text.
func FormatStatus(entries []models.StatusEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.XY())
		b.WriteByte(' ')
		if e.RenamedFrom != "" {
			b.WriteString(e.RenamedFrom)
			b.WriteString(renameArrow)
		}
		b.WriteString(e.Path)
		b.WriteByte('\n')
	}
	return b.String()
}
