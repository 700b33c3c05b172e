package tui

import "github.com/charmbracelet/lipgloss"

// Theme groups the styles of the slice slider
type Theme struct {
	// Title is the header line with strategy and slice position
	Title lipgloss.Style

	// Subtitle holds the axis and spacing line
	Subtitle lipgloss.Style

	// Help is the key legend at the bottom
	Help lipgloss.Style

	// Summary frames the per-slice record listing
	Summary lipgloss.Style

	// Warn marks slices whose detection failed
	Warn lipgloss.Style
}

// DefaultTheme returns the slider styles used when no theme is configured
func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Subtitle: lipgloss.NewStyle().Faint(true),
		Help:     lipgloss.NewStyle().Faint(true),
		Summary: lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")),
		Warn: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}
