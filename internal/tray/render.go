package tray

import (
	"fmt"
	"strings"

	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

// Catppuccin Mocha palette.
var flavor = catppuccin.Mocha

var (
	colorText     = lipgloss.Color(flavor.Text().Hex)
	colorSubtext0 = lipgloss.Color(flavor.Subtext0().Hex)
	colorBlue     = lipgloss.Color(flavor.Blue().Hex)
	colorGreen    = lipgloss.Color(flavor.Green().Hex)
	colorRed      = lipgloss.Color(flavor.Red().Hex)
	colorOverlay0 = lipgloss.Color(flavor.Overlay0().Hex)
)

var (
	// HeaderStyle renders a tool's section title.
	HeaderStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)

	// CheckedStyle renders the current profile.
	CheckedStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)

	// EntryStyle renders other profiles.
	EntryStyle = lipgloss.NewStyle().Foreground(colorText)

	// DetailStyle renders the endpoint summary.
	DetailStyle = lipgloss.NewStyle().Foreground(colorSubtext0)

	// EmptyStyle renders the placeholder of a tool with no profiles.
	EmptyStyle = lipgloss.NewStyle().Foreground(colorOverlay0).Italic(true)

	// ErrorStyle renders a section that failed to load.
	ErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
)

// Render formats menu as text, one section per tool.
func Render(menu Menu) string {
	var b strings.Builder
	for i, s := range menu.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(HeaderStyle.Render(s.Tool.DisplayName()))
		b.WriteString("\n")
		if s.Err != nil {
			b.WriteString("  ")
			b.WriteString(ErrorStyle.Render(fmt.Sprintf("unavailable: %v", s.Err)))
			b.WriteString("\n")
		}
		if len(s.Entries) == 0 && s.Err == nil {
			b.WriteString("  ")
			b.WriteString(EmptyStyle.Render("(no profiles)"))
			b.WriteString("\n")
			continue
		}
		for _, e := range s.Entries {
			mark, style := "  ", EntryStyle
			if e.Checked {
				mark, style = "✓ ", CheckedStyle
			}
			b.WriteString("  ")
			b.WriteString(style.Render(mark + e.Name))
			b.WriteString("  ")
			b.WriteString(DetailStyle.Render(e.Summary))
			b.WriteString("\n")
		}
	}
	return b.String()
}
