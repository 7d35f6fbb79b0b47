package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/config"
	"github.com/theirongolddev/bunqday/internal/pipeline"
	"github.com/theirongolddev/bunqday/internal/tui"
	"github.com/theirongolddev/bunqday/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive TUI dashboard",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	theme.SetActive(cfg.Appearance.Theme)

	// Force TrueColor profile so all background styling produces ANSI codes
	// Without this, lipgloss may default to Ascii profile (no colors)
	lipgloss.SetColorProfile(termenv.TrueColor)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	stages := make(chan string, 8)
	opts := refreshOptions(cfg)
	opts.Progress = func(stage string) {
		select {
		case stages <- stage:
		default:
		}
	}

	appOpts := tui.Options{
		Stages:          stages,
		Allowance:       cfg.Allowance(),
		Currency:        cfg.Budget.Currency,
		AutoRefresh:     cfg.TUI.AutoRefresh,
		RefreshInterval: time.Duration(cfg.TUI.RefreshIntervalSec) * time.Second,
		SaveAutoRefresh: func(on bool) error {
			cfg.TUI.AutoRefresh = on
			return config.Save(cfg)
		},
	}

	r, err := pipeline.NewRefresher(st, bunqConfig(cfg), opts)
	switch {
	case errors.Is(err, pipeline.ErrNotOnboarded):
		appOpts.Onboard = func(ctx context.Context, apiKey, description string) (tui.Backend, error) {
			client, err := bunq.NewClient(bunqConfig(cfg))
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(description) != "" {
				cfg.Bunq.DeviceDescription = description
			}
			if _, err := pipeline.Onboard(ctx, st, client, bunq.Device{
				Description:  cfg.Bunq.DeviceDescription,
				APIKey:       apiKey,
				PermittedIPs: cfg.Bunq.PermittedIPs,
			}); err != nil {
				return nil, err
			}
			if err := config.Save(cfg); err != nil {
				return nil, fmt.Errorf("saving config: %w", err)
			}
			next, err := pipeline.NewRefresher(st, bunqConfig(cfg), opts)
			if err != nil {
				return nil, err
			}
			return next, nil
		}
	case err != nil:
		return err
	default:
		appOpts.Backend = r
	}

	app := tui.NewApp(appOpts)
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
