package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Accent color
	Error   lipgloss.Color // Failures and carets
	Dim     lipgloss.Color // Secondary text
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Error:   lipgloss.Color("#ff5f5f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Error lipgloss.Style
	Caret lipgloss.Style
	Dim   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Error: lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Caret: lipgloss.NewStyle().Foreground(t.Error),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// RenderDiagnostic styles a script error message under a kind header.
//
// The first line (location) is dimmed, caret lines are colored, the
// exception line is emphasized and stack frames are dimmed.
func (s Styles) RenderDiagnostic(kind, message string) string {
	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")
	out := make([]string, 0, len(lines)+1)
	out = append(out, s.Error.Render(kind))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			out = append(out, line)
		case strings.Trim(trimmed, "^") == "":
			out = append(out, s.Caret.Render(line))
		case strings.HasPrefix(trimmed, "at "):
			out = append(out, s.Dim.Render(line))
		case i == 0 && len(lines) > 1:
			out = append(out, s.Dim.Render(line))
		case strings.Contains(line, "Error"):
			out = append(out, s.Error.Render(line))
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Row is one labeled value in a summary.
type Row struct {
	Label string
	Value string
}

// RenderSummary renders a titled block of aligned rows, truncating values
// wider than width. A width of zero disables truncation.
func (s Styles) RenderSummary(title string, rows []Row, width int) string {
	labelWidth := 0
	for _, r := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(r.Label))
	}

	lines := []string{s.Title.Render(title)}
	for _, r := range rows {
		label := r.Label + ":" + strings.Repeat(" ", labelWidth-lipgloss.Width(r.Label))
		value := r.Value
		if avail := width - labelWidth - 4; width > 0 && avail > 1 && lipgloss.Width(value) > avail {
			value = truncateString(value, avail-1) + "…"
		}
		lines = append(lines, "  "+s.Label.Render(label)+" "+value)
	}
	return strings.Join(lines, "\n")
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
