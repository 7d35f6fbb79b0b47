package components

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/bunqday/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline renders a unicode sparkline from values.
func Sparkline(values []float64, color lipgloss.Color) string {
	if len(values) == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		peak = 1
	}

	var buf strings.Builder
	buf.Grow(len(values) * 3)
	for _, v := range values {
		idx := int(v / peak * float64(len(blocks)-1))
		if idx >= len(blocks) {
			idx = len(blocks) - 1
		}
		if idx < 0 {
			idx = 0
		}
		buf.WriteRune(blocks[idx])
	}

	return lipgloss.NewStyle().Foreground(color).Render(buf.String())
}

// Bar is one row of a horizontal bar chart.
type Bar struct {
	Label string
	Value float64
	Text  string // shown after the bar, e.g. a formatted amount
	Over  bool   // drawn in the warning color
}

// HorizontalBars renders one bar per row, scaled so the largest value fills
// the available width.
func HorizontalBars(bars []Bar, width int) string {
	if len(bars) == 0 {
		return ""
	}
	t := theme.Active

	labelW, textW := 0, 0
	peak := 0.0
	for _, b := range bars {
		labelW = max(labelW, lipgloss.Width(b.Label))
		textW = max(textW, lipgloss.Width(b.Text))
		peak = max(peak, b.Value)
	}
	if peak == 0 {
		peak = 1
	}

	barW := width - labelW - textW - 2
	if barW < 4 {
		barW = 4
	}

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	textStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	okStyle := lipgloss.NewStyle().Foreground(t.Accent)
	overStyle := lipgloss.NewStyle().Foreground(t.Orange)

	lines := make([]string, len(bars))
	for i, b := range bars {
		n := int(b.Value / peak * float64(barW))
		if n < 0 {
			n = 0
		}
		if n > barW {
			n = barW
		}
		style := okStyle
		if b.Over {
			style = overStyle
		}
		lines[i] = labelStyle.Render(fmt.Sprintf("%-*s", labelW, b.Label)) + " " +
			style.Render(strings.Repeat("█", n)) + strings.Repeat(" ", barW-n) + " " +
			textStyle.Render(fmt.Sprintf("%*s", textW, b.Text))
	}
	return strings.Join(lines, "\n")
}
