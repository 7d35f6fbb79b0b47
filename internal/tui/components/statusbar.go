package components

import (
	"strings"

	"github.com/theirongolddev/bunqday/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// StatusInfo is what the bottom bar reports on its right side.
type StatusInfo struct {
	DataAge     string
	Stage       string
	Notice      string
	Refreshing  bool
	AutoRefresh bool
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, info StatusInfo) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Width(width)
	accent := lipgloss.NewStyle().Foreground(t.Accent)

	left := " [?]help  [r]efresh  [y]ank  [q]uit"

	var right []string
	switch {
	case info.Notice != "":
		right = append(right, accent.Render(info.Notice))
	case info.Refreshing && info.Stage != "":
		right = append(right, accent.Render("refreshing: "+info.Stage))
	case info.Refreshing:
		right = append(right, accent.Render("refreshing"))
	}
	if info.AutoRefresh {
		right = append(right, "auto")
	}
	if info.DataAge != "" {
		right = append(right, "Data: "+info.DataAge)
	}
	r := strings.Join(right, "  ") + " "

	padding := width - lipgloss.Width(left) - lipgloss.Width(r)
	if padding < 0 {
		padding = 0
	}

	return style.Render(left + strings.Repeat(" ", padding) + r)
}
