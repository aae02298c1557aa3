// Package theme provides the colour palettes used when printing status and diffs to a terminal.
package theme

import (
	"slices"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colours used for status and diff output.
type Theme struct {
	Added     lipgloss.Color // added lines, staged entries
	Removed   lipgloss.Color // removed lines, deleted entries
	Modified  lipgloss.Color // unstaged modifications
	Hunk      lipgloss.Color // @@ chunk headers
	Meta      lipgloss.Color // diff --git, index, mode lines
	Muted     lipgloss.Color // context lines, ignored entries
	Conflict  lipgloss.Color
	Untracked lipgloss.Color
}

// Theme names.
const (
	DraculaName        = "dracula"
	DraculaLightName   = "dracula-light"
	NordName           = "nord"
	GruvboxDarkName    = "gruvbox-dark"
	SolarizedLightName = "solarized-light"
)

// Dracula returns the Dracula theme (dark background, vibrant colors).
func Dracula() *Theme {
	return &Theme{
		Added:     lipgloss.Color("#50FA7B"), // Green
		Removed:   lipgloss.Color("#FF5555"), // Red
		Modified:  lipgloss.Color("#FFB86C"), // Orange
		Hunk:      lipgloss.Color("#8BE9FD"), // Cyan
		Meta:      lipgloss.Color("#BD93F9"), // Purple
		Muted:     lipgloss.Color("#6272A4"), // Comment
		Conflict:  lipgloss.Color("#FF79C6"), // Pink
		Untracked: lipgloss.Color("#F1FA8C"), // Yellow
	}
}

// DraculaLight returns the Dracula theme adapted for light backgrounds.
func DraculaLight() *Theme {
	return &Theme{
		Added:     lipgloss.Color("#059669"),
		Removed:   lipgloss.Color("#DC2626"),
		Modified:  lipgloss.Color("#D97706"),
		Hunk:      lipgloss.Color("#0891B2"),
		Meta:      lipgloss.Color("#7C3AED"),
		Muted:     lipgloss.Color("#6E7781"),
		Conflict:  lipgloss.Color("#DB2777"),
		Untracked: lipgloss.Color("#CA8A04"),
	}
}

// Nord returns the Nord theme.
func Nord() *Theme {
	return &Theme{
		Added:     lipgloss.Color("#A3BE8C"),
		Removed:   lipgloss.Color("#BF616A"),
		Modified:  lipgloss.Color("#D08770"),
		Hunk:      lipgloss.Color("#88C0D0"),
		Meta:      lipgloss.Color("#B48EAD"),
		Muted:     lipgloss.Color("#4C566A"),
		Conflict:  lipgloss.Color("#BF616A"),
		Untracked: lipgloss.Color("#EBCB8B"),
	}
}

// GruvboxDark returns the Gruvbox dark theme.
func GruvboxDark() *Theme {
	return &Theme{
		Added:     lipgloss.Color("#B8BB26"),
		Removed:   lipgloss.Color("#FB4934"),
		Modified:  lipgloss.Color("#FE8019"),
		Hunk:      lipgloss.Color("#83A598"),
		Meta:      lipgloss.Color("#D3869B"),
		Muted:     lipgloss.Color("#928374"),
		Conflict:  lipgloss.Color("#FB4934"),
		Untracked: lipgloss.Color("#FABD2F"),
	}
}

// SolarizedLight returns the Solarized light theme.
func SolarizedLight() *Theme {
	return &Theme{
		Added:     lipgloss.Color("#859900"),
		Removed:   lipgloss.Color("#DC322F"),
		Modified:  lipgloss.Color("#CB4B16"),
		Hunk:      lipgloss.Color("#268BD2"),
		Meta:      lipgloss.Color("#6C71C4"),
		Muted:     lipgloss.Color("#93A1A1"),
		Conflict:  lipgloss.Color("#D33682"),
		Untracked: lipgloss.Color("#B58900"),
	}
}

// GetTheme returns a theme by name, or Dracula if not found.
func GetTheme(name string) *Theme {
	switch name {
	case DraculaLightName:
		return DraculaLight()
	case NordName:
		return Nord()
	case GruvboxDarkName:
		return GruvboxDark()
	case SolarizedLightName:
		return SolarizedLight()
	default:
		return Dracula()
	}
}

// DefaultName picks the default theme for the terminal background.
func DefaultName() string {
	if lipgloss.HasDarkBackground() {
		return DraculaName
	}
	return DraculaLightName
}

// AvailableThemes returns a list of available theme names.
func AvailableThemes() []string {
	return []string{
		DraculaName,
		DraculaLightName,
		NordName,
		GruvboxDarkName,
		SolarizedLightName,
	}
}

// Known reports whether name is one of AvailableThemes.
func Known(name string) bool {
	return slices.Contains(AvailableThemes(), name)
}
