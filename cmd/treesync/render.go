package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chmouel/treesync/internal/models"
	"github.com/chmouel/treesync/internal/syncer"
	"github.com/chmouel/treesync/internal/theme"
	"github.com/muesli/reflow/wrap"
	"golang.org/x/term"
)

// terminalWidth reports the width of w and whether w is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80, true
	}
	return width, true
}

type role int

const (
	roleAdded role = iota
	roleRemoved
	roleModified
	roleHunk
	roleMeta
	roleMuted
	roleConflict
	roleUntracked
)

func (r role) colour(t *theme.Theme) lipgloss.Color {
	switch r {
	case roleAdded:
		return t.Added
	case roleRemoved:
		return t.Removed
	case roleHunk:
		return t.Hunk
	case roleMeta:
		return t.Meta
	case roleMuted:
		return t.Muted
	case roleConflict:
		return t.Conflict
	case roleUntracked:
		return t.Untracked
	default:
		return t.Modified
	}
}

// paint renders text in the colour of r; a nil palette leaves text untouched.
func paint(pal *theme.Theme, r role, text string) string {
	if pal == nil {
		return text
	}
	return lipgloss.NewStyle().Foreground(r.colour(pal)).Render(text)
}

func statusRole(e models.StatusEntry) role {
	switch {
	case e.IsConflicted():
		return roleConflict
	case e.IsUntracked():
		return roleUntracked
	case e.WorkingState == models.Ignored:
		return roleMuted
	case e.WorkingState == models.Deleted || e.IndexState == models.Deleted:
		return roleRemoved
	case e.IsStaged() && !e.HasWorkingChanges():
		return roleAdded
	default:
		return roleModified
	}
}

func renderStatus(w io.Writer, entries []models.StatusEntry, pal *theme.Theme) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "nothing to commit, working tree clean")
		return err
	}
	for _, e := range entries {
		path := e.Path
		if e.RenamedFrom != "" {
			path = e.RenamedFrom + " -> " + e.Path
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", paint(pal, statusRole(e), e.XY()), path); err != nil {
			return err
		}
	}
	return nil
}

func renderSummary(w io.Writer, s models.StatusSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "staged\t%d\n", s.Staged)
	fmt.Fprintf(tw, "unstaged\t%d\n", s.Unstaged)
	fmt.Fprintf(tw, "untracked\t%d\n", s.Untracked)
	fmt.Fprintf(tw, "conflicted\t%d\n", s.Conflicted)
	fmt.Fprintf(tw, "ignored\t%d\n", s.Ignored)
	fmt.Fprintf(tw, "total\t%d\n", s.Total)
	fmt.Fprintf(tw, "clean\t%t\n", s.IsClean)
	return tw.Flush()
}

// renderDiff prints fd as unified diff text. Lines longer than width are
// wrapped; width 0 disables wrapping.
func renderDiff(w io.Writer, fd *models.FileDiff, pal *theme.Theme, width int) error {
	var b strings.Builder
	line := func(r role, text string) {
		if width > 0 {
			text = wrap.String(text, width)
		}
		b.WriteString(paint(pal, r, text))
		b.WriteByte('\n')
	}

	for _, h := range fd.Header {
		line(roleMeta, h.Content)
	}
	for _, chunk := range fd.Chunks {
		line(roleHunk, chunk.Header())
		for _, l := range chunk.Lines {
			switch l.Kind {
			case models.LineAddition:
				line(roleAdded, "+"+l.Content)
			case models.LineDeletion:
				line(roleRemoved, "-"+l.Content)
			case models.LineNoNewline:
				line(roleMuted, `\ `+l.Content)
			case models.LineMeta:
				line(roleMeta, l.Content)
			default:
				line(roleMuted, " "+l.Content)
			}
		}
	}

	stats := fd.Stats()
	line(roleMeta, fmt.Sprintf("%s: +%d -%d", fd.ChangeType, stats.Additions, stats.Deletions))
	_, err := io.WriteString(w, b.String())
	return err
}

func renderUpdate(w io.Writer, u syncer.Update, pal *theme.Theme) error {
	stamp := time.Now().Format("15:04:05")
	var msg string
	switch u.Kind {
	case syncer.UpdateStatus:
		if u.Err != nil {
			msg = paint(pal, roleRemoved, "status failed: "+u.Err.Error())
			break
		}
		s := u.Summary
		if s.IsClean {
			msg = "status: clean"
		} else {
			msg = fmt.Sprintf("status: %d entries (%d staged, %d unstaged, %d untracked, %d conflicted)",
				s.Total, s.Staged, s.Unstaged, s.Untracked, s.Conflicted)
		}
	case syncer.UpdateBranch:
		msg = paint(pal, roleMeta, "branch: HEAD or a local branch moved")
	case syncer.UpdateEvents:
		id := u.Batch.ID
		if len(id) > 8 {
			id = id[:8]
		}
		msg = paint(pal, roleMuted, fmt.Sprintf("events %s: %s", id, strings.Join(u.Batch.Paths(), ", ")))
	default:
		msg = u.Kind.String()
	}
	_, err := fmt.Fprintf(w, "[%s] %s\n", stamp, msg)
	return err
}
