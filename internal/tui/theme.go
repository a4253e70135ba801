package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	Header   lipgloss.Style
	Frame    lipgloss.Style
	Button   lipgloss.Style
	Disabled lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Success  lipgloss.Style
	Danger   lipgloss.Style
	Overlay  lipgloss.Style
}

func defaultTheme() theme {
	accent := lipgloss.Color("#2D9CDB")
	secondary := lipgloss.Color("#7D7D7D")
	success := lipgloss.Color("#27AE60")
	danger := lipgloss.Color("#EB5757")

	return theme{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		Frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Button: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(accent).
			Padding(0, 1),
		Disabled: lipgloss.NewStyle().
			Foreground(secondary).
			Padding(0, 1),
		Muted: lipgloss.NewStyle().
			Foreground(secondary),
		Accent: lipgloss.NewStyle().
			Foreground(accent),
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(success),
		Danger: lipgloss.NewStyle().
			Bold(true).
			Foreground(danger),
		Overlay: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(danger).
			Padding(0, 1),
	}
}
