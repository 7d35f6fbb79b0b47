package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/bunqday/internal/budget"
	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/pipeline"
	"github.com/theirongolddev/bunqday/internal/tui/components"
	"github.com/theirongolddev/bunqday/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

func (a App) renderBudgetTab(cw int) string {
	if a.result == nil {
		return a.renderErrorCard("Could not load budget", cw)
	}

	t := theme.Active
	bal := a.result.Balance
	cur := a.opts.Currency
	var b strings.Builder

	balanceColor := t.Green
	balanceNote := "ahead of budget"
	if bal.Balance.IsNegative() {
		balanceColor = t.Red
		balanceNote = "behind budget"
	}

	b.WriteString(components.MetricCardRow([]components.Metric{
		{
			Label: "Left today",
			Value: cli.FormatMoney(bal.TodayLeft, cur),
			Note:  "of " + cli.FormatMoney(a.opts.Allowance, cur),
			Color: t.Level(bal.TodayLeftPercent),
		},
		{
			Label: "Since reset",
			Value: cli.FormatSignedMoney(bal.Balance, cur),
			Note:  balanceNote,
			Color: balanceColor,
		},
		{
			Label: "Until reset",
			Value: cli.FormatDays(bal.DaysLeft),
			Note:  components.ResetCountdown(bal.DaysLeft),
		},
	}, cw))
	b.WriteString("\n")

	inner := components.CardInnerWidth(cw)
	barW := inner - 27
	if barW < 10 {
		barW = 10
	}

	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	var body strings.Builder
	body.WriteString(components.AllowanceBar("Today", bal.TodayLeftPercent, bal.DaysLeft, 6, barW))

	now := a.opts.Now()
	start := budget.StartOfDay(now)
	today := pipeline.FilterByTime(a.payments, start, start.AddDate(0, 0, 1))
	if len(today) > 0 {
		body.WriteString("\n\n")
		body.WriteString(muted.Render(fmt.Sprintf("Spent %s in %d payment(s) today",
			cli.FormatMoney(pipeline.TotalSpent(today), cur), len(today))))
	}
	if a.result.FromCache {
		body.WriteString("\n")
		body.WriteString(muted.Render("Cached balance from " + cli.FormatAge(bal.ComputedAt, now) + ", press r to refresh"))
	}
	b.WriteString(components.ContentCard("Today", body.String(), cw))

	if a.err != nil {
		b.WriteString("\n")
		b.WriteString(a.renderErrorCard("Last refresh failed", cw))
	}
	return b.String()
}

func (a App) renderErrorCard(title string, cw int) string {
	t := theme.Active
	if a.err == nil {
		return components.ContentCard(title, "No data yet.", cw)
	}

	errStyle := lipgloss.NewStyle().Foreground(t.Red)
	hintStyle := lipgloss.NewStyle().Foreground(t.TextMuted)

	body := errStyle.Render(cli.Truncate(a.err.Error(), components.CardInnerWidth(cw)*2))
	if hint := errorHint(a.err); hint != "" {
		body += "\n" + hintStyle.Render(hint)
	}
	return components.ContentCard(title, body, cw)
}
