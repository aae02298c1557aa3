package git

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	log "github.com/chmouel/treesync/internal/log"
	"github.com/chmouel/treesync/internal/models"
)

// ErrMalformedHunkHeader is returned by ParseHunkHeader for lines outside the
// "@@ -O[,o] +N[,n] @@[ context]" grammar.
var ErrMalformedHunkHeader = errors.New("malformed hunk header")

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

const devNull = "/dev/null"

// DiffArgs returns the arguments for a single-file diff against the index
// (staged) or the working tree.
func DiffArgs(path string, staged bool) []string {
	args := []string{"diff", "--no-color", "--no-ext-diff", "-M"}
	if staged {
		args = append(args, "--cached")
	}
	return append(args, "--", path)
}

// ParseHunkHeader parses a hunk header line into an empty chunk.
// Omitted counts default to 1.
func ParseHunkHeader(line string) (models.Chunk, error) {
	m := hunkHeaderRe.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
	if m == nil {
		return models.Chunk{}, fmt.Errorf("%w: %q", ErrMalformedHunkHeader, line)
	}

	nums := [4]int{}
	for i, raw := range []string{m[1], m[2], m[3], m[4]} {
		if raw == "" {
			nums[i] = 1
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return models.Chunk{}, fmt.Errorf("%w: %q: %w", ErrMalformedHunkHeader, line, err)
		}
		nums[i] = n
	}

	return models.Chunk{
		OldStart: nums[0],
		OldCount: nums[1],
		NewStart: nums[2],
		NewCount: nums[3],
		Context:  strings.TrimPrefix(m[5], " "),
	}, nil
}

// ParseDiff splits unified diff text, possibly covering several files, into
// per-file diffs in input order. It never fails: malformed hunks are dropped
// and counter mismatches are logged while the chunk is kept as parsed.
func ParseDiff(raw string) []models.FileDiff {
	p := &diffParser{}
	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		next := ""
		if i+1 < len(lines) {
			next = strings.TrimSuffix(lines[i+1], "\r")
		}
		if p.feed(line, next) {
			i++
		}
	}
	p.finishFile()

	if p.files == nil {
		return []models.FileDiff{}
	}
	return p.files
}

type diffParser struct {
	files []models.FileDiff
	file  *models.FileDiff
	chunk *models.Chunk

	// dropping is set while skipping the body of a chunk whose header did not parse.
	dropping bool
	// sawFileHeaders is set once the current file has its ---/+++ pair.
	sawFileHeaders bool
	// binaryPatch is set while skipping "GIT binary patch" payload.
	binaryPatch bool

	oldLine, newLine int
	oldLeft, newLeft int
}

// feed consumes one line and reports whether the lookahead line was consumed too.
func (p *diffParser) feed(line, next string) bool {
	switch {
	case strings.HasPrefix(line, "diff --git "):
		p.startFile(line)
		p.parseGitHeader(strings.TrimPrefix(line, "diff --git "))
		return false
	case strings.HasPrefix(line, "diff --cc "), strings.HasPrefix(line, "diff --combined "):
		p.startFile(line)
		_, path, _ := strings.Cut(line[len("diff --"):], " ")
		p.file.Path = unquotePath(path)
		p.file.ChangeType = models.ChangeUnmerged
		return false
	case strings.HasPrefix(line, "* Unmerged path "):
		p.startFile(line)
		p.file.Path = unquotePath(strings.TrimPrefix(line, "* Unmerged path "))
		p.file.ChangeType = models.ChangeUnmerged
		p.finishFile()
		return false
	case strings.HasPrefix(line, "@@"):
		p.startChunk(line)
		return false
	}

	if p.chunk != nil && (p.oldLeft > 0 || p.newLeft > 0) {
		p.bodyLine(line)
		return false
	}

	// body lines of a dropped chunk are never file headers
	if !p.dropping && strings.HasPrefix(line, "--- ") && strings.HasPrefix(next, "+++ ") {
		if p.file == nil || p.sawFileHeaders || p.chunk != nil || len(p.file.Chunks) > 0 {
			p.startFile("")
		}
		p.fileHeaders(line, next)
		return true
	}

	if p.chunk != nil || p.dropping {
		p.bodyLine(line)
		return false
	}

	if p.file != nil {
		p.extendedHeader(line)
	}
	return false
}

func (p *diffParser) startFile(line string) {
	p.finishFile()
	p.file = &models.FileDiff{ChangeType: models.ChangeModified}
	if line != "" {
		p.file.Header = append(p.file.Header, models.Line{Kind: models.LineFileHeader, Content: line})
	}
}

func (p *diffParser) finishFile() {
	p.closeChunk()
	p.dropping = false
	p.sawFileHeaders = false
	p.binaryPatch = false
	if p.file == nil {
		return
	}

	f := p.file
	p.file = nil
	if f.ChangeType == models.ChangeModified && f.OldMode != "" && f.NewMode != "" && objectType(f.OldMode) != objectType(f.NewMode) {
		f.ChangeType = models.ChangeTypeChanged
	}
	if f.IsBinary {
		f.Chunks = nil
	}
	p.files = append(p.files, *f)
}

func (p *diffParser) startChunk(line string) {
	p.closeChunk()
	p.dropping = false
	if p.file == nil {
		p.startFile("")
	}

	chunk, err := ParseHunkHeader(line)
	if err != nil {
		log.Warnf("diff: dropping chunk in %q: %v", p.file.Path, err)
		p.dropping = true
		return
	}
	p.chunk = &chunk
	p.oldLine, p.newLine = chunk.OldStart, chunk.NewStart
	p.oldLeft, p.newLeft = chunk.OldCount, chunk.NewCount
}

func (p *diffParser) closeChunk() {
	if p.chunk == nil {
		return
	}
	c := p.chunk
	p.chunk = nil
	if p.oldLeft != 0 || p.newLeft != 0 {
		log.Warnf("diff: chunk %q in %q: line counts off by old=%d new=%d, keeping as parsed",
			c.Header(), p.file.Path, p.oldLeft, p.newLeft)
	}
	if p.file.IsBinary {
		return
	}
	p.file.Chunks = append(p.file.Chunks, *c)
}

func (p *diffParser) bodyLine(line string) {
	if p.dropping {
		return
	}
	c := p.chunk

	if line == "" {
		// Some tools strip the single space of empty context lines.
		if p.oldLeft > 0 && p.newLeft > 0 {
			p.context("")
		}
		return
	}

	switch line[0] {
	case ' ':
		p.context(line[1:])
	case '+':
		c.Lines = append(c.Lines, models.Line{Kind: models.LineAddition, NewLine: p.newLine, Content: line[1:]})
		p.newLine++
		p.newLeft--
	case '-':
		c.Lines = append(c.Lines, models.Line{Kind: models.LineDeletion, OldLine: p.oldLine, Content: line[1:]})
		p.oldLine++
		p.oldLeft--
	case '\\':
		c.Lines = append(c.Lines, models.Line{Kind: models.LineNoNewline, Content: strings.TrimPrefix(line[1:], " ")})
	default:
		c.Lines = append(c.Lines, models.Line{Kind: models.LineMeta, Content: line})
	}
}

func (p *diffParser) context(content string) {
	p.chunk.Lines = append(p.chunk.Lines, models.Line{
		Kind:    models.LineContext,
		OldLine: p.oldLine,
		NewLine: p.newLine,
		Content: content,
	})
	p.oldLine++
	p.newLine++
	p.oldLeft--
	p.newLeft--
}

func (p *diffParser) fileHeaders(minus, plus string) {
	f := p.file
	p.sawFileHeaders = true
	f.Header = append(f.Header,
		models.Line{Kind: models.LineFileHeader, Content: minus},
		models.Line{Kind: models.LineFileHeader, Content: plus},
	)

	oldPath := headerPath(strings.TrimPrefix(minus, "--- "), "a/")
	newPath := headerPath(strings.TrimPrefix(plus, "+++ "), "b/")

	switch {
	case oldPath == "" && newPath != "":
		f.Path = newPath
		if f.ChangeType == models.ChangeModified {
			f.ChangeType = models.ChangeAdded
		}
	case newPath == "" && oldPath != "":
		f.Path = oldPath
		if f.ChangeType == models.ChangeModified {
			f.ChangeType = models.ChangeDeleted
		}
	case newPath != "":
		f.Path = newPath
		if oldPath != newPath {
			f.OldPath = oldPath
		}
	}
}

func (p *diffParser) extendedHeader(line string) {
	f := p.file
	if p.binaryPatch {
		return
	}
	f.Header = append(f.Header, models.Line{Kind: models.LineMeta, Content: line})

	switch {
	case strings.HasPrefix(line, "new file mode "):
		f.ChangeType = models.ChangeAdded
		f.NewMode = strings.TrimPrefix(line, "new file mode ")
	case strings.HasPrefix(line, "deleted file mode "):
		f.ChangeType = models.ChangeDeleted
		f.OldMode = strings.TrimPrefix(line, "deleted file mode ")
	case strings.HasPrefix(line, "old mode "):
		f.OldMode = strings.TrimPrefix(line, "old mode ")
	case strings.HasPrefix(line, "new mode "):
		f.NewMode = strings.TrimPrefix(line, "new mode ")
	case strings.HasPrefix(line, "similarity index "):
		pct := strings.TrimSuffix(strings.TrimPrefix(line, "similarity index "), "%")
		f.Similarity, _ = strconv.Atoi(pct)
	case strings.HasPrefix(line, "rename from "):
		f.ChangeType = models.ChangeRenamed
		f.OldPath = unquotePath(strings.TrimPrefix(line, "rename from "))
	case strings.HasPrefix(line, "rename to "):
		f.ChangeType = models.ChangeRenamed
		f.Path = unquotePath(strings.TrimPrefix(line, "rename to "))
	case strings.HasPrefix(line, "copy from "):
		f.ChangeType = models.ChangeCopied
		f.OldPath = unquotePath(strings.TrimPrefix(line, "copy from "))
	case strings.HasPrefix(line, "copy to "):
		f.ChangeType = models.ChangeCopied
		f.Path = unquotePath(strings.TrimPrefix(line, "copy to "))
	case strings.HasPrefix(line, "Binary files ") && strings.HasSuffix(line, " differ"):
		f.IsBinary = true
		if f.Path == "" {
			pair := strings.TrimSuffix(strings.TrimPrefix(line, "Binary files "), " differ")
			if oldPath, newPath, ok := strings.Cut(pair, " and "); ok {
				if np := headerPath(newPath, "b/"); np != "" {
					f.Path = np
				} else {
					f.Path = headerPath(oldPath, "a/")
				}
			}
		}
	case line == "GIT binary patch":
		f.IsBinary = true
		p.binaryPatch = true
	}
}

// parseGitHeader extracts paths from the remainder of a "diff --git" line.
func (p *diffParser) parseGitHeader(rest string) {
	oldPath, newPath := splitGitHeaderPaths(rest)
	p.file.Path = newPath
	if p.file.Path == "" {
		p.file.Path = oldPath
	}
	if oldPath != "" && oldPath != newPath {
		p.file.OldPath = oldPath
	}
}

func splitGitHeaderPaths(rest string) (string, string) {
	if strings.HasPrefix(rest, `"`) {
		if quoted, err := strconv.QuotedPrefix(rest); err == nil {
			oldPath := unquotePath(quoted)
			newPath := unquotePath(strings.TrimSpace(rest[len(quoted):]))
			return strings.TrimPrefix(oldPath, "a/"), strings.TrimPrefix(newPath, "b/")
		}
	}
	if strings.HasSuffix(rest, `"`) {
		if idx := strings.LastIndex(rest, ` "`); idx >= 0 {
			return strings.TrimPrefix(rest[:idx], "a/"), strings.TrimPrefix(unquotePath(rest[idx+1:]), "b/")
		}
	}

	// "a/P b/P" is the common case: both halves are the same path.
	if len(rest)%2 == 1 {
		half := len(rest) / 2
		if rest[half] == ' ' {
			oldPath, newPath := strings.TrimPrefix(rest[:half], "a/"), strings.TrimPrefix(rest[half+1:], "b/")
			if oldPath == newPath {
				return oldPath, newPath
			}
		}
	}
	if idx := strings.LastIndex(rest, " b/"); idx >= 0 {
		return strings.TrimPrefix(rest[:idx], "a/"), rest[idx+len(" b/"):]
	}
	if oldPath, newPath, ok := strings.Cut(rest, " "); ok {
		return oldPath, newPath
	}
	return rest, rest
}

// headerPath decodes a ---/+++ path, dropping timestamps and the side prefix.
// /dev/null yields an empty path.
func headerPath(raw, prefix string) string {
	if !strings.HasPrefix(raw, `"`) {
		if before, _, ok := strings.Cut(raw, "\t"); ok {
			raw = before
		}
	}
	raw = unquotePath(strings.TrimSpace(raw))
	if raw == devNull {
		return ""
	}
	return strings.TrimPrefix(raw, prefix)
}

// objectType strips the permission bits from a git mode string.
func objectType(mode string) string {
	if len(mode) <= 3 {
		return mode
	}
	return mode[:len(mode)-3]
}
