package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/theirongolddev/bunqday/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

const defaultDeviceDescription = "bunqday"

// setupValues holds what the first-run form collects.
type setupValues struct {
	APIKey      string
	Description string
}

func validateAPIKey(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("an API key is required")
	}
	if strings.ContainsAny(s, " \t") {
		return errors.New("API keys contain no spaces")
	}
	return nil
}

func newSetupForm(vals *setupValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to bunqday").
				Description("Create an API key in the bunq app under\nProfile > Security & Settings > Developers > API keys."),
			huh.NewInput().
				Title("bunq API key").
				EchoMode(huh.EchoModePassword).
				Validate(validateAPIKey).
				Value(&vals.APIKey),
			huh.NewInput().
				Title("Device name").
				Description("Shown in the bunq app's list of connected devices.").
				Value(&vals.Description),
		),
	).WithShowHelp(true)
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		a.setupForm = nil
		a.onboarding = true
		return a, tea.Batch(a.spinner.Tick, onboardCmd(a.opts.Onboard, *a.setupVals, a.opts.Timeout))
	case huh.StateAborted:
		return a, tea.Quit
	}
	return a, cmd
}

func onboardCmd(onboard OnboardFunc, vals setupValues, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		if onboard == nil {
			return onboardedMsg{err: errors.New("setup is not available here; run `bunqday setup`")}
		}
		desc := strings.TrimSpace(vals.Description)
		if desc == "" {
			desc = defaultDeviceDescription
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		b, err := onboard(ctx, strings.TrimSpace(vals.APIKey), desc)
		return onboardedMsg{backend: b, err: err}
	}
}

func (a App) viewSetup() string {
	t := theme.Active
	var b strings.Builder
	if a.setupErr != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(t.Red).Render("Setup failed: " + a.setupErr.Error()))
		if hint := errorHint(a.setupErr); hint != "" {
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Foreground(t.TextMuted).Render(hint))
		}
		b.WriteString("\n\n")
	}
	b.WriteString(a.setupForm.View())
	return b.String()
}
