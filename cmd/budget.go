package cmd

import (
	"fmt"
	"time"

	"github.com/theirongolddev/bunqday/internal/budget"
	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/config"
	"github.com/theirongolddev/bunqday/internal/pipeline"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show what is left to spend today",
	RunE:  runBudget,
}

func init() {
	budgetCmd.Flags().BoolVarP(&flagRefresh, "refresh", "r", false, "Fetch a fresh balance from bunq")
	rootCmd.AddCommand(budgetCmd)
}

type budgetOutput struct {
	AccountID        int64           `json:"account_id"`
	AccountName      string          `json:"account_name"`
	Currency         string          `json:"currency"`
	DailyAllowance   decimal.Decimal `json:"daily_allowance"`
	TodayLeft        decimal.Decimal `json:"today_left"`
	TodayLeftPercent float64         `json:"today_left_percent"`
	Balance          decimal.Decimal `json:"balance"`
	DaysLeft         int             `json:"days_left"`
	NextReset        string          `json:"next_reset"`
	ComputedAt       time.Time       `json:"computed_at"`
	FromCache        bool            `json:"from_cache"`
}

func runBudget(_ *cobra.Command, _ []string) error {
	cfg, r, st, err := loadRefresher()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	res, err := r.Refresh(ctx, flagRefresh || flagNoCache)
	if err != nil {
		return err
	}

	now := time.Now()
	nextReset := budget.NextReset(now, cfg.Budget.ResetDay)

	if flagJSON {
		return printJSON(budgetOutput{
			AccountID:        res.Account.AccountID,
			AccountName:      res.Account.AccountName,
			Currency:         cfg.Budget.Currency,
			DailyAllowance:   cfg.Allowance(),
			TodayLeft:        res.Balance.TodayLeft,
			TodayLeftPercent: res.Balance.TodayLeftPercent,
			Balance:          res.Balance.Balance,
			DaysLeft:         res.Balance.DaysLeft,
			NextReset:        nextReset.Format(time.DateOnly),
			ComputedAt:       res.Balance.ComputedAt,
			FromCache:        res.FromCache,
		})
	}

	printBudget(cfg, res, nextReset, now)
	return nil
}

func printBudget(cfg config.Config, res *pipeline.Result, nextReset, now time.Time) {
	bal := res.Balance
	cur := cfg.Budget.Currency

	title := "TODAY'S BUDGET"
	if res.Account.AccountName != "" {
		title += "  " + res.Account.AccountName
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(title))
	fmt.Println()

	balance := cli.FormatSignedMoney(bal.Balance, cur)
	if bal.Balance.IsNegative() {
		balance = cli.Bad(balance + " behind")
	} else {
		balance = cli.Good(balance + " ahead")
	}

	updated := cli.FormatAge(bal.ComputedAt, now)
	if res.FromCache {
		updated += " (cached)"
	}

	rows := [][]string{
		{"Left today", cli.LevelStyle(bal.TodayLeftPercent).Render(cli.FormatMoney(bal.TodayLeft, cur))},
		{"Allowance", cli.FormatMoney(cfg.Allowance(), cur) + "/day"},
		{"---"},
		{"Since reset", balance},
		{"Until reset", fmt.Sprintf("%s (%s)", cli.FormatDays(bal.DaysLeft), nextReset.Format("Mon 2 Jan"))},
		{"---"},
		{"Updated", updated},
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Budget", "Value"},
		Rows:    rows,
	}))
	fmt.Printf("\n  %s\n\n", cli.RenderBudgetBar(bal.TodayLeftPercent, 30))
}
