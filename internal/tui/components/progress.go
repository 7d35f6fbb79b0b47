package components

import (
	"fmt"

	"github.com/theirongolddev/bunqday/internal/tui/theme"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

func clampPct(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 1 {
		return 1
	}
	return pct
}

// AllowanceBar renders a labeled bar of how much of today's allowance is
// left, followed by the percentage and the days until the next reset.
func AllowanceBar(label string, pct float64, daysLeft, labelW, barWidth int) string {
	t := theme.Active
	color := t.Level(pct)

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	pctStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	resetStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	return labelStyle.Render(fmt.Sprintf("%-*s", labelW, label)) + " " +
		bar.ViewAs(clampPct(pct)) + " " +
		pctStyle.Render(fmt.Sprintf("%3.0f%%", pct*100)) + "  " +
		resetStyle.Render(ResetCountdown(daysLeft))
}

// CompactAllowanceBar renders a status-bar-sized allowance indicator.
func CompactAllowanceBar(label string, pct float64, width int) string {
	t := theme.Active
	color := t.Level(pct)

	barW := width - lipgloss.Width(label) - 6
	if barW < 4 {
		barW = 4
	}

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(barW),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	pctStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)

	return labelStyle.Render(label) + " " +
		bar.ViewAs(clampPct(pct)) + " " +
		pctStyle.Render(fmt.Sprintf("%2.0f%%", clampPct(pct)*100))
}

// ResetCountdown describes how far away the next budget reset is.
func ResetCountdown(daysLeft int) string {
	switch {
	case daysLeft <= 0:
		return ""
	case daysLeft == 1:
		return "resets tomorrow"
	default:
		return fmt.Sprintf("resets in %dd", daysLeft)
	}
}
