package render

import (
	"github.com/charmbracelet/lipgloss"
)

// Autumn palette with warm earth tones
var (
	ColorBase03 = lipgloss.Color("#5c5044") // Comments, invisibles
	ColorBase05 = lipgloss.Color("#ab937b") // Default foreground
	ColorBase07 = lipgloss.Color("#f5d7b9") // Lightest foreground

	ColorRed    = lipgloss.Color("#d95f5f")
	ColorOrange = lipgloss.Color("#eb8755")
	ColorYellow = lipgloss.Color("#f5b761")
	ColorGreen  = lipgloss.Color("#93b56b")
	ColorCyan   = lipgloss.Color("#61afaf")
	ColorBlue   = lipgloss.Color("#6b93b5")
	ColorViolet = lipgloss.Color("#6c71c4")
)

// Styles holds the lipgloss styles used for transcript output
type Styles struct {
	HumanMessage  lipgloss.Style
	AIMessage     lipgloss.Style
	SystemMessage lipgloss.Style
	DraftMessage  lipgloss.Style
	ErrorMessage  lipgloss.Style
	Activity      lipgloss.Style

	RoleLabel     lipgloss.Style
	ArtifactTitle lipgloss.Style
	ArtifactBox   lipgloss.Style
	Muted         lipgloss.Style
}

// DefaultStyles returns the default styles
func DefaultStyles() *Styles {
	return &Styles{
		HumanMessage: lipgloss.NewStyle().
			Foreground(ColorYellow),
		AIMessage: lipgloss.NewStyle().
			Foreground(ColorBase07),
		SystemMessage: lipgloss.NewStyle().
			Foreground(ColorBase05).
			Italic(true),
		DraftMessage: lipgloss.NewStyle().
			Foreground(ColorBase05),
		ErrorMessage: lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true),
		Activity: lipgloss.NewStyle().
			Foreground(ColorViolet).
			Italic(true),

		RoleLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorOrange),
		ArtifactTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan),
		ArtifactBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBlue).
			Padding(0, 1),
		Muted: lipgloss.NewStyle().
			Foreground(ColorBase03),
	}
}

// successStyle marks a completed artifact
var successStyle = lipgloss.NewStyle().Foreground(ColorGreen)
