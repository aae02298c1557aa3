// Package models defines the data objects shared across treesync packages.
package models

import (
	"fmt"
	"strings"
)

// ChangeType describes how a file changed between two tree states.
type ChangeType int

const (
	ChangeModified ChangeType = iota
	ChangeAdded
	ChangeDeleted
	ChangeRenamed
	ChangeCopied
	ChangeUnmerged
	ChangeTypeChanged
)

func (c ChangeType) String() string {
	switch c {
	case ChangeModified:
		return "modified"
	case ChangeAdded:
		return "added"
	case ChangeDeleted:
		return "deleted"
	case ChangeRenamed:
		return "renamed"
	case ChangeCopied:
		return "copied"
	case ChangeUnmerged:
		return "unmerged"
	case ChangeTypeChanged:
		return "typechanged"
	default:
		return "unknown"
	}
}

// LineKind classifies a single diff line.
type LineKind int

const (
	LineContext LineKind = iota
	LineAddition
	LineDeletion
	LineNoNewline
	LineHeader
	LineFileHeader
	LineMeta
)

func (k LineKind) String() string {
	switch k {
	case LineContext:
		return "context"
	case LineAddition:
		return "addition"
	case LineDeletion:
		return "deletion"
	case LineNoNewline:
		return "nonewline"
	case LineHeader:
		return "header"
	case LineFileHeader:
		return "fileheader"
	case LineMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// Line is one line of a diff. Line numbers are 1-based; zero means absent.
// Additions never carry OldLine, deletions never carry NewLine.
type Line struct {
	Kind    LineKind
	OldLine int
	NewLine int
	Content string // without the leading marker character
}

// Chunk is one hunk of a unified diff.
type Chunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Context  string // text after the closing @@, empty when absent
	Lines    []Line
}

// OldEnd is the last old-side line covered by the chunk.
func (c Chunk) OldEnd() int {
	return c.OldStart + c.OldCount - 1
}

// NewEnd is the last new-side line covered by the chunk.
func (c Chunk) NewEnd() int {
	return c.NewStart + c.NewCount - 1
}

// Header formats the chunk header the way git does, omitting counts equal to 1.
func (c Chunk) Header() string {
	var b strings.Builder
	b.WriteString("@@ -")
	b.WriteString(formatRange(c.OldStart, c.OldCount))
	b.WriteString(" +")
	b.WriteString(formatRange(c.NewStart, c.NewCount))
	b.WriteString(" @@")
	if c.Context != "" {
		b.WriteByte(' ')
		b.WriteString(c.Context)
	}
	return b.String()
}

// HeaderLine returns the chunk header as a Line of kind LineHeader.
func (c Chunk) HeaderLine() Line {
	return Line{Kind: LineHeader, Content: c.Header()}
}

func formatRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// DiffStats counts added and removed lines.
type DiffStats struct {
	Additions int
	Deletions int
}

// FileDiff is the change set of one file. Binary diffs never carry chunks.
type FileDiff struct {
	Path       string
	OldPath    string // empty unless the file was renamed or copied
	ChangeType ChangeType
	IsBinary   bool
	OldMode    string
	NewMode    string
	Similarity int // percentage from "similarity index", 0 when absent
	Header     []Line
	Chunks     []Chunk
}

// Stats counts additions and deletions across all chunks.
func (f *FileDiff) Stats() DiffStats {
	var s DiffStats
	for _, c := range f.Chunks {
		for _, l := range c.Lines {
			switch l.Kind {
			case LineAddition:
				s.Additions++
			case LineDeletion:
				s.Deletions++
			}
		}
	}
	return s
}
