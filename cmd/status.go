package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/config"
	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local setup state without contacting bunq",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Onboarded         bool           `json:"onboarded"`
	Stale             bool           `json:"stale"`
	BaseURL           string         `json:"base_url"`
	Sandbox           bool           `json:"sandbox"`
	ServerFingerprint string         `json:"server_fingerprint,omitempty"`
	ClientFingerprint string         `json:"client_fingerprint,omitempty"`
	AccountID         int64          `json:"account_id,omitempty"`
	AccountName       string         `json:"account_name,omitempty"`
	Cached            *model.Balance `json:"cached_balance,omitempty"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	out := statusOutput{
		BaseURL: config.BaseURL(cfg),
		Sandbox: config.Sandbox(cfg),
	}

	bundle, err := st.LoadAuthorization()
	switch {
	case errors.Is(err, model.ErrStaleCredentials):
		out.Stale = true
	case err != nil:
		return fmt.Errorf("reading credentials: %w", err)
	case bundle != nil:
		out.Onboarded = true
		out.ServerFingerprint = keys.Fingerprint(bundle.ServerPublicKey)
		out.ClientFingerprint = keys.Fingerprint(&bundle.PrivateKey.PublicKey)
	}

	prefs, err := st.LoadPreferences()
	if err != nil {
		return fmt.Errorf("reading preferences: %w", err)
	}
	if prefs != nil {
		out.AccountID = prefs.AccountID
		out.AccountName = prefs.AccountName
	}

	cached, err := st.LoadCachedBalance()
	if err != nil {
		return fmt.Errorf("reading cached balance: %w", err)
	}
	if cached != nil && !cached.ComputedAt.IsZero() {
		out.Cached = cached
	}

	if flagJSON {
		return printJSON(out)
	}
	printStatus(cfg, out, time.Now())
	return nil
}

func printStatus(cfg config.Config, out statusOutput, now time.Time) {
	fmt.Println()
	fmt.Println(cli.RenderTitle("BUNQDAY STATUS"))
	fmt.Println()

	setup := cli.Good("registered")
	switch {
	case out.Stale:
		setup = cli.Bad("stale: run `bunqday logout` then `bunqday setup`")
	case !out.Onboarded:
		setup = cli.Bad("not set up: run `bunqday setup`")
	}

	env := "production"
	if out.Sandbox {
		env = "sandbox"
	}

	rows := [][]string{
		{"Device", setup},
		{"Environment", env},
		{"API", out.BaseURL},
	}
	if out.Onboarded {
		rows = append(rows,
			[]string{"Server key", out.ServerFingerprint},
			[]string{"Client key", out.ClientFingerprint},
		)
	}
	rows = append(rows, []string{"---"})

	account := cli.Muted("none selected yet")
	if out.AccountID != 0 {
		account = fmt.Sprintf("%s (#%d)", out.AccountName, out.AccountID)
	}
	rows = append(rows, []string{"Account", account})

	if out.Cached != nil {
		age := cli.FormatAge(out.Cached.ComputedAt, now)
		if out.Cached.Fresh(now, cfg.CacheTTL()) {
			age += " (fresh)"
		}
		rows = append(rows,
			[]string{"Cached", age},
			[]string{"Left today", cli.FormatMoney(out.Cached.TodayLeft, cfg.Budget.Currency)},
		)
	} else {
		rows = append(rows, []string{"Cached", cli.Muted("nothing cached")})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Setting", "Value"},
		Rows:    rows,
	}))
}
