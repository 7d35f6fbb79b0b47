// Package cmd implements the bunqday CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/theirongolddev/bunqday/internal/budget"
	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/config"
	"github.com/theirongolddev/bunqday/internal/logging"
	"github.com/theirongolddev/bunqday/internal/pipeline"
	"github.com/theirongolddev/bunqday/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagDBPath     string
	flagNoCache    bool
	flagRefresh    bool
	flagJSON       bool
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "bunqday",
	Short: "Daily spending allowance for your bunq account",
	Long: "bunqday turns your bunq balance into a daily allowance: how much is left " +
		"to spend today, and how far ahead or behind budget you are until the next reset.",
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logging.Configure(os.Stderr, flagVerbose)
		config.SetPath(flagConfigPath)
	},
	RunE: runBudget,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/bunqday/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Credential database (default $XDG_DATA_HOME/bunqday/bunqday.db)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Never serve a cached balance")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.Flags().BoolVarP(&flagRefresh, "refresh", "r", false, "Fetch a fresh balance from bunq")
}

func openStore() (*store.Store, error) {
	path := flagDBPath
	if path == "" {
		path = store.DefaultPath()
	}
	return store.Open(path)
}

func bunqConfig(cfg config.Config) bunq.Config {
	return bunq.Config{
		BaseURL: config.BaseURL(cfg),
		Timeout: cfg.RequestTimeout(),
	}
}

func refreshOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		Budget: budget.Config{
			DailyAllowance: cfg.Allowance(),
			ResetDay:       cfg.Budget.ResetDay,
		},
		CacheTTL: cfg.CacheTTL(),
		PageSize: cfg.Fetch.PageSize,
		MaxPages: cfg.Fetch.MaxPages,
	}
}

// newRefresher opens the credential store and builds a refresher on it.
// The caller closes the returned store.
func newRefresher(cfg config.Config, opts pipeline.Options) (*pipeline.Refresher, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	r, err := pipeline.NewRefresher(st, bunqConfig(cfg), opts)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return r, st, nil
}

// loadRefresher is the shared setup path of every command that talks to bunq.
func loadRefresher() (config.Config, *pipeline.Refresher, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	r, st, err := newRefresher(cfg, refreshOptions(cfg))
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, r, st, nil
}

// commandContext is canceled on Ctrl-C so in-flight requests stop cleanly.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}
