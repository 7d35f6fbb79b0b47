package cmd

import (
	"fmt"
	"time"

	"github.com/theirongolddev/bunqday/internal/budget"
	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/model"
	"github.com/theirongolddev/bunqday/internal/pipeline"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	flagPaymentsDays   int
	flagPaymentsFilter string
	flagPaymentsLimit  int
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Recent payments and spending per day",
	RunE:  runPayments,
}

func init() {
	paymentsCmd.Flags().IntVarP(&flagPaymentsDays, "days", "n", 7, "Days of history, today included")
	paymentsCmd.Flags().StringVarP(&flagPaymentsFilter, "filter", "f", "", "Only payments whose counterparty or description contains this")
	paymentsCmd.Flags().IntVarP(&flagPaymentsLimit, "limit", "l", 25, "Maximum payments listed (0 for all)")
	rootCmd.AddCommand(paymentsCmd)
}

type paymentOutput struct {
	ID           int64           `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Counterparty string          `json:"counterparty,omitempty"`
	Description  string          `json:"description,omitempty"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

func runPayments(_ *cobra.Command, _ []string) error {
	if flagPaymentsDays < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", flagPaymentsDays)
	}

	cfg, r, st, err := loadRefresher()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	payments, err := r.RecentPayments(ctx, flagPaymentsDays)
	if err != nil {
		return err
	}
	if flagPaymentsFilter != "" {
		payments = pipeline.FilterByCounterparty(payments, flagPaymentsFilter)
	}

	if flagJSON {
		out := make([]paymentOutput, len(payments))
		for i, p := range payments {
			out[i] = paymentOutput{
				ID:           p.ID,
				CreatedAt:    p.CreatedAt,
				Amount:       p.Amount,
				Currency:     p.Currency,
				Counterparty: p.CounterpartyName,
				Description:  p.Description,
				BalanceAfter: p.BalanceAfterMutation,
			}
		}
		return printJSON(out)
	}

	if len(payments) == 0 {
		fmt.Printf("\n  No payments in the last %s.\n\n", cli.FormatDays(flagPaymentsDays))
		return nil
	}

	cur := cfg.Budget.Currency
	allowance := cfg.Allowance()
	now := time.Now()
	until := budget.StartOfDay(now).AddDate(0, 0, 1)
	since := until.AddDate(0, 0, -flagPaymentsDays)
	days := pipeline.AggregateDays(payments, since, until, now.Location())

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("PAYMENTS  Last %s", cli.FormatDays(flagPaymentsDays))))
	fmt.Println()

	fmt.Print(cli.RenderTable(dailyTable(days, allowance, cur)))

	spark := make([]float64, len(days))
	for i, d := range days {
		spark[len(days)-1-i] = d.Spent.InexactFloat64()
	}
	fmt.Printf("\n  Trend  %s\n\n", cli.RenderSparkline(spark))

	fmt.Print(cli.RenderTable(paymentTable(payments, flagPaymentsLimit, cur)))
	return nil
}

func dailyTable(days []model.DailySpend, allowance decimal.Decimal, cur string) cli.Table {
	rows := make([][]string, 0, len(days)+2)
	total := decimal.Zero
	for _, d := range days {
		spent := cli.FormatMoney(d.Spent, cur)
		if d.Spent.GreaterThan(allowance) {
			spent = cli.Bad(spent)
		}
		closing := "-"
		if d.Payments > 0 {
			closing = cli.FormatMoney(d.ClosingBalance, cur)
		}
		rows = append(rows, []string{
			d.Date.Format("2006-01-02"),
			cli.FormatDayOfWeek(int(d.Date.Weekday())),
			cli.FormatNumber(int64(d.Payments)),
			spent,
			cli.FormatMoney(d.Received, cur),
			closing,
		})
		total = total.Add(d.Spent)
	}
	rows = append(rows, []string{"---"})
	rows = append(rows, []string{"Total", "", "", cli.FormatMoney(total, cur), "", ""})

	return cli.Table{
		Title:   "Spending per day",
		Headers: []string{"Date", "Day", "Payments", "Spent", "Received", "Balance"},
		Rows:    rows,
	}
}

func paymentTable(payments []model.Payment, limit int, cur string) cli.Table {
	shown := payments
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	rows := make([][]string, len(shown))
	for i, p := range shown {
		who := p.CounterpartyName
		if who == "" {
			who = p.Description
		}
		amount := cli.FormatSignedMoney(p.Amount, cur)
		if p.Amount.IsPositive() {
			amount = cli.Good(amount)
		}
		rows[i] = []string{
			p.CreatedAt.Local().Format("Mon 02 15:04"),
			cli.Truncate(who, 32),
			amount,
			cli.FormatMoney(p.BalanceAfterMutation, cur),
		}
	}

	title := "Payments"
	if len(shown) < len(payments) {
		title = fmt.Sprintf("Payments (latest %d of %d)", len(shown), len(payments))
	}
	return cli.Table{
		Title:   title,
		Headers: []string{"When", "Counterparty", "Amount", "Balance"},
		Rows:    rows,
	}
}
