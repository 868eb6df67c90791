package render

import "github.com/charmbracelet/lipgloss"

// Warm earth-tone palette
var (
	ColorText    = lipgloss.Color("#ab937b")
	ColorBright  = lipgloss.Color("#f5d7b9")
	ColorMuted   = lipgloss.Color("#5c5044")
	ColorBorder  = lipgloss.Color("#5c5044")
	ColorUser    = lipgloss.Color("#eb8755")
	ColorAgent   = lipgloss.Color("#6b93b5")
	ColorTool    = lipgloss.Color("#976bb5")
	ColorSuccess = lipgloss.Color("#93b56b")
	ColorError   = lipgloss.Color("#d95f5f")
	ColorInfo    = lipgloss.Color("#61afaf")
)

// Styles are the lipgloss styles a Renderer draws with
type Styles struct {
	UserLabel  lipgloss.Style
	AgentLabel lipgloss.Style
	Content    lipgloss.Style
	Reasoning  lipgloss.Style
	ToolBox    lipgloss.Style
	ToolName   lipgloss.Style
	ToolResult lipgloss.Style
	ToolError  lipgloss.Style
	Status     lipgloss.Style
	Error      lipgloss.Style
	Info       lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		UserLabel:  lipgloss.NewStyle().Bold(true).Foreground(ColorUser),
		AgentLabel: lipgloss.NewStyle().Bold(true).Foreground(ColorAgent),
		Content:    lipgloss.NewStyle().Foreground(ColorBright),
		Reasoning:  lipgloss.NewStyle().Italic(true).Foreground(ColorMuted).PaddingLeft(2),
		ToolBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
		ToolName:   lipgloss.NewStyle().Bold(true).Foreground(ColorTool),
		ToolResult: lipgloss.NewStyle().Foreground(ColorSuccess),
		ToolError:  lipgloss.NewStyle().Foreground(ColorError),
		Status:     lipgloss.NewStyle().Faint(true).Foreground(ColorText),
		Error:      lipgloss.NewStyle().Bold(true).Foreground(ColorError),
		Info:       lipgloss.NewStyle().Foreground(ColorInfo),
	}
}
