package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/tui/components"
	"github.com/theirongolddev/bunqday/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

func (a App) renderAccountTab(cw int) string {
	t := theme.Active
	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)

	account := "(unknown)"
	computed := "never"
	source := "-"
	if a.result != nil {
		acct := a.result.Account
		if acct.AccountID != 0 {
			account = fmt.Sprintf("%s (#%d)", acct.AccountName, acct.AccountID)
		}
		computed = cli.FormatAge(a.result.Balance.ComputedAt, a.opts.Now())
		source = "bunq API"
		if a.result.FromCache {
			source = "local cache"
		}
	}

	auto := "off"
	if a.autoRefresh {
		auto = "every " + a.opts.RefreshInterval.String()
	}

	rows := []struct{ label, value string }{
		{"Account", account},
		{"Daily allowance", cli.FormatMoney(a.opts.Allowance, a.opts.Currency)},
		{"Last computed", computed},
		{"Data source", source},
		{"Auto-refresh", auto},
		{"History", cli.FormatDays(a.opts.HistoryDays)},
		{"Theme", t.Name},
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", r.label)))
		b.WriteString(valueStyle.Render(r.value))
	}
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(t.TextDim).
		Render("Switch accounts with `bunqday accounts use <id>`."))

	return components.ContentCard("Account", b.String(), cw)
}
