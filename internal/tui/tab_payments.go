package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/bunqday/internal/budget"
	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/model"
	"github.com/theirongolddev/bunqday/internal/pipeline"
	"github.com/theirongolddev/bunqday/internal/tui/components"
	"github.com/theirongolddev/bunqday/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

func (a App) renderPaymentsTab(cw, h int) string {
	t := theme.Active
	cur := a.opts.Currency

	if a.paymentsErr != nil && a.payments == nil {
		errStyle := lipgloss.NewStyle().Foreground(t.Red)
		body := errStyle.Render(a.paymentsErr.Error())
		if hint := errorHint(a.paymentsErr); hint != "" {
			body += "\n" + lipgloss.NewStyle().Foreground(t.TextMuted).Render(hint)
		}
		return components.ContentCard("Payments", body, cw)
	}

	now := a.opts.Now()
	until := budget.StartOfDay(now).AddDate(0, 0, 1)
	since := until.AddDate(0, 0, -a.opts.HistoryDays)
	days := pipeline.AggregateDays(a.payments, since, until, now.Location())

	bars := make([]components.Bar, len(days))
	for i, d := range days {
		bars[i] = components.Bar{
			Label: d.Date.Format("Mon 02"),
			Value: d.Spent.InexactFloat64(),
			Text:  cli.FormatMoney(d.Spent, cur),
			Over:  d.Spent.GreaterThan(a.opts.Allowance),
		}
	}

	inner := components.CardInnerWidth(cw)
	spendCard := components.ContentCard(
		fmt.Sprintf("Spending per day (%dd)", a.opts.HistoryDays),
		components.HorizontalBars(bars, inner),
		cw,
	)

	// Whatever height the chart leaves goes to the payment list.
	rows := h - lipgloss.Height(spendCard) - 3
	if rows < 1 {
		rows = 1
	}
	listCard := components.ContentCard("Recent payments", a.renderPaymentList(inner, rows), cw)

	return spendCard + "\n" + listCard
}

func (a App) renderPaymentList(width, rows int) string {
	t := theme.Active
	cur := a.opts.Currency

	if len(a.payments) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextDim).
			Render(fmt.Sprintf("No payments in the last %s.", cli.FormatDays(a.opts.HistoryDays)))
	}

	whenStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	nameStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	outStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	inStyle := lipgloss.NewStyle().Foreground(t.Green)

	const whenW, amountW = 10, 13
	nameW := width - whenW - amountW - 2
	if nameW < 8 {
		nameW = 8
	}

	loc := a.opts.Now().Location()
	shown := a.payments
	if len(shown) > rows {
		shown = shown[:rows]
	}

	lines := make([]string, len(shown))
	for i, p := range shown {
		amountStyle := outStyle
		if p.Amount.IsPositive() {
			amountStyle = inStyle
		}
		lines[i] = whenStyle.Render(fmt.Sprintf("%-*s", whenW, p.CreatedAt.In(loc).Format("Mon 15:04"))) + " " +
			nameStyle.Render(fmt.Sprintf("%-*s", nameW, cli.Truncate(paymentLabel(p), nameW))) + " " +
			amountStyle.Render(fmt.Sprintf("%*s", amountW, cli.FormatSignedMoney(p.Amount, cur)))
	}
	return strings.Join(lines, "\n")
}

func paymentLabel(p model.Payment) string {
	if p.CounterpartyName != "" {
		return p.CounterpartyName
	}
	if p.Description != "" {
		return p.Description
	}
	return fmt.Sprintf("payment %d", p.ID)
}
