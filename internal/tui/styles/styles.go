// Package styles holds the lipgloss styles shared by the terminal views.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on dark backgrounds.
	PrimaryColor   = lipgloss.Color("#A78BFA") // violet-400
	SecondaryColor = lipgloss.Color("#10B981") // green
	WarningColor   = lipgloss.Color("#F59E0B") // amber
	ErrorColor     = lipgloss.Color("#F87171") // red-400
	MutedColor     = lipgloss.Color("#9CA3AF") // gray
	TextColor      = lipgloss.Color("#F9FAFB")
	BorderColor    = lipgloss.Color("#6B7280") // gray-500
	OverrideColor  = lipgloss.Color("#60A5FA") // blue

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Label = lipgloss.NewStyle().
		Foreground(MutedColor).
		Width(13)

	// Status renders a presence line the way a friend list would show it.
	Status = lipgloss.NewStyle().
		Foreground(TextColor).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 1)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(1, 2)

	HelpKey = lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true)

	HelpDesc = lipgloss.NewStyle().
			Foreground(MutedColor)

	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	SuccessMsg = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)
)

// Presence states shown by the status views.
const (
	StateOnline   = "online"
	StateOffline  = "offline"
	StateOverride = "override"
	StateIdle     = "idle"
)

// StateColor returns the color for a presence state.
func StateColor(state string) lipgloss.Color {
	switch state {
	case StateOnline:
		return SecondaryColor
	case StateOverride:
		return OverrideColor
	case StateIdle:
		return WarningColor
	case StateOffline:
		return ErrorColor
	default:
		return MutedColor
	}
}

// StateIcon returns the icon for a presence state.
func StateIcon(state string) string {
	switch state {
	case StateOnline:
		return "●"
	case StateOverride:
		return "✎"
	case StateIdle:
		return "◐"
	case StateOffline:
		return "○"
	default:
		return "·"
	}
}

// Badge renders icon and state name in the state's color.
func Badge(state string) string {
	return lipgloss.NewStyle().Foreground(StateColor(state)).Render(StateIcon(state) + " " + state)
}

// Help renders key/description pairs as a single help line.
func Help(pairs ...string) string {
	var out string
	for i := 0; i+1 < len(pairs); i += 2 {
		if out != "" {
			out += HelpDesc.Render("  •  ")
		}
		out += HelpKey.Render(pairs[i]) + " " + HelpDesc.Render(pairs[i+1])
	}
	return out
}
