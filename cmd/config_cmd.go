package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/theirongolddev/bunqday/internal/config"
	"github.com/theirongolddev/bunqday/internal/store"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	dbPath := flagDBPath
	if dbPath == "" {
		dbPath = store.DefaultPath()
	}
	fmt.Printf("  Database:    %s\n", dbPath)
	fmt.Println()

	fmt.Println("  [Bunq]")
	fmt.Printf("    API URL:     %s\n", config.BaseURL(cfg))
	fmt.Printf("    Sandbox:     %v\n", config.Sandbox(cfg))
	key := config.GetAPIKey(cfg)
	source := ""
	if os.Getenv("BUNQ_API_KEY") != "" {
		source = " (from BUNQ_API_KEY)"
	}
	fmt.Printf("    API key:     %s%s\n", config.MaskKey(key), source)
	fmt.Printf("    Device name: %s\n", cfg.Bunq.DeviceDescription)
	if len(cfg.Bunq.PermittedIPs) > 0 {
		fmt.Printf("    Permitted:   %s\n", strings.Join(cfg.Bunq.PermittedIPs, ", "))
	}
	fmt.Println()

	fmt.Println("  [Budget]")
	fmt.Printf("    Daily allowance: %s %s\n", cfg.Allowance().StringFixed(2), cfg.Budget.Currency)
	fmt.Printf("    Reset day:       %d\n", cfg.Budget.ResetDay)
	fmt.Println()

	fmt.Println("  [Fetch]")
	fmt.Printf("    Page size:  %d\n", cfg.Fetch.PageSize)
	fmt.Printf("    Max pages:  %d\n", cfg.Fetch.MaxPages)
	fmt.Printf("    Cache TTL:  %s\n", cfg.CacheTTL())
	fmt.Printf("    Timeout:    %s\n", cfg.RequestTimeout())
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:  %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Interval: %s\n", cfg.DaemonInterval())
	fmt.Println()

	fmt.Println("  [Dashboard]")
	fmt.Printf("    Auto refresh: %v (every %ds)\n", cfg.TUI.AutoRefresh, cfg.TUI.RefreshIntervalSec)
	fmt.Printf("    Theme:        %s\n", cfg.Appearance.Theme)
	fmt.Println()

	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Problem: %v\n\n", err)
	}
	fmt.Println("  Edit the file above to change settings, or run `bunqday setup` to register again.")
	return nil
}
