package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/theirongolddev/bunqday/internal/cli"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List your bunq monetary accounts",
	RunE:  runAccounts,
}

var accountsUseCmd = &cobra.Command{
	Use:   "use <account-id>",
	Short: "Track a different account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsUse,
}

func init() {
	accountsCmd.AddCommand(accountsUseCmd)
	rootCmd.AddCommand(accountsCmd)
}

type accountOutput struct {
	ID       int64           `json:"id"`
	Kind     string          `json:"kind"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Tracked  bool            `json:"tracked"`
}

func runAccounts(_ *cobra.Command, _ []string) error {
	_, r, st, err := loadRefresher()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	accounts, err := r.Accounts(ctx)
	if err != nil {
		return err
	}

	var tracked int64
	if prefs, err := st.LoadPreferences(); err == nil && prefs != nil {
		tracked = prefs.AccountID
	}

	if flagJSON {
		out := make([]accountOutput, len(accounts))
		for i, a := range accounts {
			out[i] = accountOutput{
				ID:       a.ID,
				Kind:     accountKind(a.Kind),
				Name:     a.Description,
				Balance:  a.Balance,
				Currency: a.Currency,
				Status:   a.Status,
				Tracked:  a.ID == tracked,
			}
		}
		return printJSON(out)
	}

	if len(accounts) == 0 {
		fmt.Println("\n  No monetary accounts found.")
		return nil
	}

	rows := make([][]string, len(accounts))
	for i, a := range accounts {
		mark := ""
		if a.ID == tracked {
			mark = "*"
		}
		status := a.Status
		if !a.Active() {
			status = cli.Muted(status)
		}
		rows[i] = []string{
			mark,
			strconv.FormatInt(a.ID, 10),
			cli.Truncate(a.Description, 28),
			accountKind(a.Kind),
			cli.FormatMoney(a.Balance, a.Currency),
			status,
		}
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Accounts",
		Headers: []string{"", "ID", "Name", "Type", "Balance", "Status"},
		Rows:    rows,
	}))
	fmt.Println(cli.Muted("  * tracked account. Switch with: bunqday accounts use <id>"))
	fmt.Println()
	return nil
}

func runAccountsUse(_ *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid account id %q", args[0])
	}

	_, r, st, err := loadRefresher()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	prefs, err := r.SelectAccount(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("  Now tracking %s (#%d)\n", prefs.AccountName, prefs.AccountID)
	return nil
}

// accountKind shortens bunq's wrapper names, e.g. MonetaryAccountSavings -> savings.
func accountKind(kind string) string {
	k := strings.TrimPrefix(kind, "MonetaryAccount")
	if k == "" {
		return kind
	}
	return strings.ToLower(k)
}
