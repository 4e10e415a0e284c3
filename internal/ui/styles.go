package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/liamwears/reeldeck/internal/models"
)

type palette struct {
	text      lipgloss.Color
	muted     lipgloss.Color
	primary   lipgloss.Color
	highlight lipgloss.Color
	bar       lipgloss.Color
	selected  lipgloss.Color
	errorFg   lipgloss.Color
	star      lipgloss.Color
}

var (
	darkPalette = palette{
		text:      lipgloss.Color("255"),
		muted:     lipgloss.Color("244"),
		primary:   lipgloss.Color("62"),  // Purple
		highlight: lipgloss.Color("212"), // Pink
		bar:       lipgloss.Color("236"),
		selected:  lipgloss.Color("62"),
		errorFg:   lipgloss.Color("196"),
		star:      lipgloss.Color("220"),
	}
	lightPalette = palette{
		text:      lipgloss.Color("235"),
		muted:     lipgloss.Color("243"),
		primary:   lipgloss.Color("25"),
		highlight: lipgloss.Color("161"),
		bar:       lipgloss.Color("253"),
		selected:  lipgloss.Color("153"),
		errorFg:   lipgloss.Color("160"),
		star:      lipgloss.Color("172"),
	}
)

// Styles is the set of styles for one theme
type Styles struct {
	Title        lipgloss.Style
	Tab          lipgloss.Style
	ActiveTab    lipgloss.Style
	NormalItem   lipgloss.Style
	SelectedItem lipgloss.Style
	Muted        lipgloss.Style
	Badge        lipgloss.Style
	Rating       lipgloss.Style
	Genre        lipgloss.Style
	ActiveGenre  lipgloss.Style
	GenreCursor  lipgloss.Style
	Panel        lipgloss.Style
	PanelHeader  lipgloss.Style
	StatusBar    lipgloss.Style
	Error        lipgloss.Style
	Heading      lipgloss.Style
}

// NewStyles builds the styles for theme
func NewStyles(theme models.ThemeMode) Styles {
	p := darkPalette
	if theme == models.ThemeLight {
		p = lightPalette
	}

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.highlight).
			Padding(0, 1),
		Tab: lipgloss.NewStyle().
			Foreground(p.muted).
			Padding(0, 1),
		ActiveTab: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.text).
			Background(p.primary).
			Padding(0, 1),
		NormalItem: lipgloss.NewStyle().
			Foreground(p.text).
			Padding(0, 1),
		SelectedItem: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.text).
			Background(p.selected).
			Padding(0, 1),
		Muted: lipgloss.NewStyle().
			Foreground(p.muted),
		Badge: lipgloss.NewStyle().
			Foreground(p.highlight).
			Bold(true),
		Rating: lipgloss.NewStyle().
			Foreground(p.star),
		Genre: lipgloss.NewStyle().
			Foreground(p.muted).
			Padding(0, 1),
		ActiveGenre: lipgloss.NewStyle().
			Foreground(p.text).
			Background(p.primary).
			Padding(0, 1),
		GenreCursor: lipgloss.NewStyle().
			Underline(true).
			Foreground(p.highlight).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.primary).
			Padding(0, 1),
		PanelHeader: lipgloss.NewStyle().
			Foreground(p.muted).
			Italic(true),
		StatusBar: lipgloss.NewStyle().
			Foreground(p.text).
			Background(p.bar).
			Padding(0, 1),
		Error: lipgloss.NewStyle().
			Foreground(p.errorFg).
			Bold(true).
			Padding(0, 1),
		Heading: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.primary),
	}
}
