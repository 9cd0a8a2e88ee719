package console

import "github.com/charmbracelet/lipgloss"

var (
	colorBorder  = lipgloss.Color("#4b5563")
	colorDimmed  = lipgloss.Color("#6b7280")
	colorBright  = lipgloss.Color("#f9fafb")
	colorHealthy = lipgloss.Color("#22c55e")
	colorWarning = lipgloss.Color("#d97706")
	colorDanger  = lipgloss.Color("#dc2626")
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorBright).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleDimmed = lipgloss.NewStyle().Foreground(colorDimmed)
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
)

// healthColor maps a session health string to its colour.
func healthColor(h string) lipgloss.Color {
	switch h {
	case "healthy":
		return colorHealthy
	case "degraded":
		return colorWarning
	case "failing":
		return colorDanger
	default:
		return colorDimmed
	}
}
