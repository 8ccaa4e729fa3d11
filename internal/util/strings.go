package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateWidth truncates s to maxWidth terminal columns, adding "..." if
// truncated. Escape sequences and wide characters such as CJK are measured
// by display width, not bytes or runes.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// SingleLine joins the lines of s with a visible separator so multi-line
// text can be shown where a status line would be.
func SingleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Join(strings.Split(s, "\n"), " ⏎ ")
}
