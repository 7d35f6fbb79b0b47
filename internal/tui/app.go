// Package tui provides the interactive Bubble Tea dashboard for bunqday.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/model"
	"github.com/theirongolddev/bunqday/internal/pipeline"
	"github.com/theirongolddev/bunqday/internal/tui/components"
	"github.com/theirongolddev/bunqday/internal/tui/theme"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Backend is what the dashboard reads from. *pipeline.Refresher satisfies it.
type Backend interface {
	Refresh(ctx context.Context, force bool) (*pipeline.Result, error)
	RecentPayments(ctx context.Context, days int) ([]model.Payment, error)
}

// OnboardFunc registers a device for apiKey and returns a ready backend.
type OnboardFunc func(ctx context.Context, apiKey, description string) (Backend, error)

// Options configures the dashboard.
type Options struct {
	// Backend is nil when no device is registered yet; the dashboard then
	// starts with the setup form and calls Onboard.
	Backend Backend
	Onboard OnboardFunc

	// Stages receives refresh stage names while a refresh runs.
	Stages <-chan string

	Allowance       decimal.Decimal
	Currency        string
	HistoryDays     int
	AutoRefresh     bool
	RefreshInterval time.Duration
	Timeout         time.Duration

	// SaveAutoRefresh persists the auto-refresh toggle. Optional.
	SaveAutoRefresh func(bool) error
	// Copy writes to the system clipboard. Defaults to clipboard.WriteAll.
	Copy func(string) error
	Now  func() time.Time
}

// balanceMsg carries the outcome of a budget refresh.
type balanceMsg struct {
	res *pipeline.Result
	err error
}

// paymentsMsg carries the recent payment history.
type paymentsMsg struct {
	payments []model.Payment
	err      error
}

// stageMsg reports the stage a running refresh has reached.
type stageMsg string

// onboardedMsg is sent when device registration finishes.
type onboardedMsg struct {
	backend Backend
	err     error
}

// copiedMsg is sent after writing to the clipboard.
type copiedMsg struct {
	text string
	err  error
}

type tickMsg time.Time

// App is the root Bubble Tea model.
type App struct {
	opts    Options
	backend Backend

	// Data
	result      *pipeline.Result
	err         error
	payments    []model.Payment
	paymentsErr error
	loaded      bool

	// Refresh state
	autoRefresh bool
	refreshing  bool
	stage       string
	lastRefresh time.Time

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool
	notice    string
	noticeAt  time.Time
	spinner   spinner.Model

	// First-run setup (huh form)
	setupForm  *huh.Form
	setupVals  *setupValues
	setupErr   error
	needSetup  bool
	onboarding bool
}

const (
	minTerminalWidth = 60
	maxContentWidth  = 120
	minContentHeight = 5

	defaultHistoryDays     = 7
	defaultRefreshInterval = 5 * time.Minute
	minRefreshInterval     = 30 * time.Second
	defaultTimeout         = time.Minute
	noticeDuration         = 3 * time.Second
)

// NewApp creates a new TUI app model.
func NewApp(opts Options) App {
	if opts.HistoryDays < 1 {
		opts.HistoryDays = defaultHistoryDays
	}
	if opts.RefreshInterval < minRefreshInterval {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	a := App{
		opts:        opts,
		backend:     opts.Backend,
		autoRefresh: opts.AutoRefresh,
		spinner:     sp,
		setupVals:   &setupValues{Description: defaultDeviceDescription},
	}

	if a.backend == nil {
		a.needSetup = true
		a.setupForm = newSetupForm(a.setupVals)
	} else {
		a.refreshing = true
	}
	return a
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnableMouseCellMotion,
		a.spinner.Tick,
		tickCmd(),
		waitForStage(a.opts.Stages),
	}
	if a.needSetup {
		cmds = append(cmds, a.setupForm.Init())
	} else {
		cmds = append(cmds, a.reloadCmd(false))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		return a, nil

	case tea.MouseMsg:
		if !a.loaded || a.showHelp || a.needSetup {
			return a, nil
		}
		if msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress && msg.Y == 0 {
			if tab := components.TabAtX(a.activeTab, msg.X); tab >= 0 {
				a.activeTab = tab
			}
		}
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.needSetup && a.setupForm != nil {
			return a.updateSetupForm(msg)
		}
		return a.handleKey(msg)

	case balanceMsg:
		a.refreshing = false
		a.stage = ""
		a.loaded = true
		a.lastRefresh = a.opts.Now()
		a.err = msg.err
		if msg.err == nil {
			a.result = msg.res
		}
		return a, nil

	case paymentsMsg:
		a.paymentsErr = msg.err
		if msg.err == nil {
			a.payments = msg.payments
		}
		return a, nil

	case stageMsg:
		a.stage = string(msg)
		return a, waitForStage(a.opts.Stages)

	case onboardedMsg:
		a.onboarding = false
		if msg.err != nil {
			a.setupErr = msg.err
			a.setupVals.APIKey = ""
			a.setupForm = newSetupForm(a.setupVals)
			if a.width > 0 {
				a.setupForm = a.setupForm.WithWidth(a.width).WithHeight(a.height)
			}
			return a, a.setupForm.Init()
		}
		a.backend = msg.backend
		a.needSetup = false
		a.setupErr = nil
		a.refreshing = true
		return a, a.reloadCmd(false)

	case copiedMsg:
		if msg.err != nil {
			a.setNotice("clipboard unavailable")
		} else {
			a.setNotice("copied " + msg.text)
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tickMsg:
		now := time.Time(msg)
		if a.notice != "" && now.Sub(a.noticeAt) >= noticeDuration {
			a.notice = ""
		}
		cmds := []tea.Cmd{tickCmd()}
		if a.backend != nil && a.loaded && a.autoRefresh && !a.refreshing &&
			now.Sub(a.lastRefresh) >= a.opts.RefreshInterval {
			a.refreshing = true
			cmds = append(cmds, a.reloadCmd(true))
		}
		return a, tea.Batch(cmds...)
	}

	// Forward unhandled messages to the setup form (cursor blinks, etc.)
	if a.needSetup && a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "?" {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}
	if key == "q" {
		return a, tea.Quit
	}
	if a.backend == nil {
		return a, nil
	}

	switch key {
	case "r":
		if a.refreshing {
			return a, nil
		}
		a.refreshing = true
		return a, a.reloadCmd(true)

	case "R":
		a.autoRefresh = !a.autoRefresh
		if a.opts.SaveAutoRefresh != nil {
			_ = a.opts.SaveAutoRefresh(a.autoRefresh)
		}
		if a.autoRefresh {
			a.setNotice("auto-refresh on")
		} else {
			a.setNotice("auto-refresh off")
		}
		return a, nil

	case "y":
		if a.result == nil {
			return a, nil
		}
		return a, copyCmd(a.opts.Copy, a.result.Balance.TodayLeft.StringFixed(2))

	case "tab", "right":
		a.activeTab = (a.activeTab + 1) % len(components.Tabs)
		return a, nil

	case "shift+tab", "left":
		a.activeTab = (a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs)
		return a, nil
	}

	if r := []rune(key); len(r) == 1 {
		if idx := components.TabIdxByKey(r[0]); idx >= 0 {
			a.activeTab = idx
		}
	}
	return a, nil
}

func (a *App) setNotice(s string) {
	a.notice = s
	a.noticeAt = a.opts.Now()
}

func (a App) contentWidth() int {
	cw := a.width
	if cw > maxContentWidth {
		cw = maxContentWidth
	}
	return cw
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if a.needSetup && a.setupForm != nil && !a.onboarding {
		return a.viewSetup()
	}
	if a.onboarding {
		return a.viewLoading("Registering device with bunq...")
	}
	if !a.loaded {
		label := "Loading budget..."
		if a.stage != "" {
			label = stageLabel(a.stage)
		}
		return a.viewLoading(label)
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := a.height
	if h < 5 {
		h = 5
	}
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  bunqday needs at least %d columns.\n",
		a.width,
		minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading(label string) string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(2, 4)

	logoStyle := lipgloss.NewStyle().
		Foreground(t.AccentBright).
		Bold(true)

	subtitleStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ bunqday"))
	b.WriteString(subtitleStyle.Render(" · daily budget"))
	b.WriteString("\n\n")
	b.WriteString(a.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render(label))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n\n")

	bindings := []struct{ key, desc string }{
		{"b p a", "Jump to tab"},
		{"← →", "Previous / Next tab"},
		{"r", "Refresh now"},
		{"R", "Toggle auto-refresh"},
		{"y", "Copy today's allowance"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}
	for _, bind := range bindings {
		fmt.Fprintf(&b, "  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-8s", bind.key)),
			descStyle.Render(bind.desc))
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()

	header := components.RenderTabBar(a.activeTab, w)

	age := ""
	if a.result != nil {
		age = cli.FormatAge(a.result.Balance.ComputedAt, a.opts.Now())
	}
	statusBar := components.RenderStatusBar(w, components.StatusInfo{
		DataAge:     age,
		Stage:       a.stage,
		Notice:      a.notice,
		Refreshing:  a.refreshing,
		AutoRefresh: a.autoRefresh,
	})

	contentH := a.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < minContentHeight {
		contentH = minContentHeight
	}

	var content string
	switch a.activeTab {
	case 0:
		content = a.renderBudgetTab(cw)
	case 1:
		content = a.renderPaymentsTab(cw, contentH)
	case 2:
		content = a.renderAccountTab(cw)
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// errorHint turns a refresh failure into something the user can act on.
func errorHint(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrNotOnboarded), errors.Is(err, pipeline.ErrStaleCredentials):
		return "Run `bunqday setup` to register this device again."
	case errors.Is(err, bunq.ErrUnauthorized):
		return "The API key may have been revoked. Run `bunqday setup` with a new key."
	case errors.Is(err, bunq.ErrSignature):
		return "bunq's response could not be verified. Run `bunqday setup` if this persists."
	case errors.Is(err, bunq.ErrRateLimited):
		return "bunq is rate limiting requests. Try again in a minute."
	case errors.Is(err, bunq.ErrTransport):
		return "Could not reach bunq. Check your network connection."
	case errors.Is(err, pipeline.ErrNoAccount):
		return "Open or reactivate a bank account in the bunq app."
	}
	return ""
}

func stageLabel(stage string) string {
	switch stage {
	case pipeline.StageCache:
		return "Checking cached balance..."
	case pipeline.StageSession:
		return "Opening session..."
	case pipeline.StageAccount:
		return "Looking up account..."
	case pipeline.StagePayments:
		return "Fetching today's payments..."
	case pipeline.StageCompute:
		return "Computing budget..."
	}
	return stage
}

// ─── Commands ───────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForStage blocks until the refresher reports its next stage.
func waitForStage(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stageMsg(s)
	}
}

// reloadCmd refreshes the budget and the payment history side by side.
func (a App) reloadCmd(force bool) tea.Cmd {
	return tea.Batch(
		refreshCmd(a.backend, force, a.opts.Timeout),
		paymentsCmd(a.backend, a.opts.HistoryDays, a.opts.Timeout),
	)
}

func refreshCmd(b Backend, force bool, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := b.Refresh(ctx, force)
		return balanceMsg{res: res, err: err}
	}
}

func paymentsCmd(b Backend, days int, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		payments, err := b.RecentPayments(ctx, days)
		return paymentsMsg{payments: payments, err: err}
	}
}

func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{text: text, err: write(text)}
	}
}

// ─── Helpers ────────────────────────────────────────────────────

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}
