package output

import "github.com/charmbracelet/lipgloss"

// Color palette. Single cyan accent with muted support colors.
const (
	colorCyan     = "51"  // primary accent for scores and headers
	colorGray     = "245" // secondary text, paths, labels
	colorDarkGray = "238" // separators
	colorRed      = "196" // errors
	colorYellow   = "220" // warnings and diagnostics
	colorGreen    = "84"  // cache hits, healthy status
)

// Styles holds the render styles for CLI output.
type Styles struct {
	Header    lipgloss.Style
	Score     lipgloss.Style
	Path      lipgloss.Style
	Label     lipgloss.Style
	Dim       lipgloss.Style
	Good      lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Separator lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorCyan)),
		Score:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan)),
		Path:      lipgloss.NewStyle().Bold(true),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		Good:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
	}
}

// PlainStyles returns an unstyled set for non-TTY output.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:    plain,
		Score:     plain,
		Path:      plain,
		Label:     plain,
		Dim:       plain,
		Good:      plain,
		Warning:   plain,
		Error:     plain,
		Separator: plain,
	}
}
