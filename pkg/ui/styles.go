package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	// Brand colors
	Primary   = lipgloss.Color("#E8590C") // Fox orange
	Secondary = lipgloss.Color("#00D4AA") // Teal

	// Status colors
	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
	Info    = lipgloss.Color("#4D96FF")

	// HTTP status code colors
	Status2xx = lipgloss.Color("#00D26A")
	Status3xx = lipgloss.Color("#4D96FF")
	Status4xx = lipgloss.Color("#FFD93D")
	Status5xx = lipgloss.Color("#FF3838")
)

// Pre-configured styles
var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true).
			MarginTop(1)

	ConfigLabelStyle = lipgloss.NewStyle().
				Foreground(Muted).
				Width(18)

	ConfigValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FAFAFA"))

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(Muted)

	StatValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	BracketStyle = lipgloss.NewStyle().
			Foreground(Muted)

	PassStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	FailStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarnStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	DividerStyle = lipgloss.NewStyle().
			Foreground(Muted)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	URLStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Underline(true)

	ContextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#3B3B4F")).
			Padding(0, 1)

	InfoStyle = lipgloss.NewStyle().
			Foreground(Primary)
)

// StageStyle returns the style for a probe stage label ("smoke" or "full").
func StageStyle(stage string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch stage {
	case "smoke":
		return base.Foreground(lipgloss.Color("#000000")).Background(Warning)
	case "full":
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(Error)
	default:
		return base.Foreground(Muted)
	}
}

// VerificationStyle returns the style for a verification status.
func VerificationStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch status {
	case "verified":
		return base.Foreground(Error)
	case "suspect":
		return base.Foreground(Warning)
	default:
		return base.Foreground(Muted)
	}
}

// StatusCodeStyle returns the appropriate style for HTTP status codes
func StatusCodeStyle(code int) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch {
	case code >= 200 && code < 300:
		return base.Foreground(Status2xx)
	case code >= 300 && code < 400:
		return base.Foreground(Status3xx)
	case code >= 400 && code < 500:
		return base.Foreground(Status4xx)
	case code >= 500:
		return base.Foreground(Status5xx)
	default:
		return base.Foreground(Muted)
	}
}
