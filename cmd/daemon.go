package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/theirongolddev/bunqday/internal/cli"
	"github.com/theirongolddev/bunqday/internal/config"
	"github.com/theirongolddev/bunqday/internal/daemon"
	"github.com/theirongolddev/bunqday/internal/logging"
	"github.com/theirongolddev/bunqday/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep the balance fresh in the background and serve it over HTTP/SSE",
	Long: "Polls bunq on an interval, keeps the cached balance current for the other " +
		"commands, and serves /v1/status, /v1/balance and a /v1/stream of changes.",
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	defaultPID := filepath.Join(store.DataDir(), "bunqdayd.pid")
	defaultLog := filepath.Join(store.DataDir(), "bunqdayd.log")

	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default from config)")
	daemonCmd.PersistentFlags().DurationVar(&flagDaemonInterval, "interval", 0, "Polling interval (default from config)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", defaultPID, "PID file path")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", defaultLog, "Log file path for detached mode")
	daemonCmd.PersistentFlags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 200, "Max in-memory events retained")

	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr, interval := daemonSettings(cfg)
	files := runtimeFiles{pidPath: flagDaemonPIDFile}

	if err := files.ensureNotRunning(); err != nil {
		return err
	}
	if flagDaemonDetach {
		return startDaemonDetached(files, addr)
	}
	return runDaemonForeground(cfg, files, addr, interval)
}

// daemonSettings resolves the listen address and interval, flags first.
func daemonSettings(cfg config.Config) (string, time.Duration) {
	addr := flagDaemonAddr
	if addr == "" {
		addr = cfg.Daemon.Addr
	}
	interval := flagDaemonInterval
	if interval <= 0 {
		interval = cfg.DaemonInterval()
	}
	return addr, interval
}

// startDaemonDetached re-executes this binary as a foreground child whose
// output goes to the log file.
func startDaemonDetached(files runtimeFiles, addr string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := files.ensureDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}

	//nolint:gosec // daemon log path is configured by the local user
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	args := append(withoutDetach(os.Args[1:]), "--child")
	child := exec.Command(exe, args...) //nolint:gosec // exe/args come from current process invocation
	child.Stdout = logf
	child.Stderr = logf
	child.Env = os.Environ()

	if err := child.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", child.Process.Pid)
	fmt.Printf("  PID file: %s\n", files.pidPath)
	fmt.Printf("  API: http://%s/v1/balance\n", addr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

func runDaemonForeground(cfg config.Config, files runtimeFiles, addr string, interval time.Duration) error {
	r, st, err := newRefresher(cfg, refreshOptions(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	dbPath := flagDBPath
	if dbPath == "" {
		dbPath = store.DefaultPath()
	}
	if err := files.claim(daemonRuntimeState{
		PID:       os.Getpid(),
		Addr:      addr,
		StartedAt: time.Now(),
		DBPath:    dbPath,
	}); err != nil {
		return err
	}
	defer files.release()

	svc := daemon.New(daemon.Config{
		Interval:     interval,
		Addr:         addr,
		EventsBuffer: flagDaemonEventsBuffer,
	}, r)

	logging.Infof("bunqday daemon listening on http://%s", addr)
	logging.Infof("polling %s every %s", config.BaseURL(cfg), interval)
	if !flagDaemonChild {
		fmt.Printf("  Stop with: bunqday daemon stop --pid-file %s\n", files.pidPath)
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	files := runtimeFiles{pidPath: flagDaemonPIDFile}
	pid, err := files.pid()
	if err != nil {
		fmt.Println("  Daemon: not running (pid file not found)")
		return nil
	}
	if !processAlive(pid) {
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := flagDaemonAddr
	if st, err := files.state(); err == nil && st.Addr != "" && addr == "" {
		addr = st.Addr
	}
	if addr == "" {
		if cfg, err := config.Load(); err == nil {
			addr = cfg.Daemon.Addr
		}
	}

	rows := [][]string{
		{"PID", fmt.Sprintf("%d", pid)},
		{"Address", "http://" + addr},
	}
	st, err := fetchDaemonStatus(addr)
	if err != nil {
		rows = append(rows, []string{"API", cli.Bad(err.Error())})
	} else {
		rows = append(rows, daemonStatusRows(st, time.Now())...)
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Daemon",
		Headers: []string{"Field", "Value"},
		Rows:    rows,
	}))
	return nil
}

func fetchDaemonStatus(addr string) (daemon.Status, error) {
	var st daemon.Status

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, fmt.Errorf("unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("malformed response: %w", err)
	}
	return st, nil
}

func daemonStatusRows(st daemon.Status, now time.Time) [][]string {
	lastPoll := "pending"
	if !st.LastPollAt.IsZero() {
		lastPoll = cli.FormatAge(st.LastPollAt, now)
	}
	rows := [][]string{
		{"Last poll", lastPoll},
		{"Polls", cli.FormatNumber(st.PollCount)},
		{"Subscribers", cli.FormatNumber(int64(st.SubscriberCount))},
	}
	if st.HasSnapshot {
		s := st.Summary
		rows = append(rows,
			[]string{"---"},
			[]string{"Account", fmt.Sprintf("%s (#%d)", s.AccountName, s.AccountID)},
			[]string{"Left today", s.TodayLeft.StringFixed(2)},
			[]string{"Balance", s.Balance.StringFixed(2)},
			[]string{"Days left", cli.FormatDays(s.DaysLeft)},
		)
	}
	if st.LastError != "" {
		rows = append(rows, []string{"Last error", cli.Bad(st.LastError)})
	}
	return rows
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	files := runtimeFiles{pidPath: flagDaemonPIDFile}
	pid, err := files.pid()
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	tick := time.NewTicker(150 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(8 * time.Second)
	for {
		select {
		case <-tick.C:
			if !processAlive(pid) {
				files.release()
				fmt.Printf("  Stopped daemon (pid %d)\n", pid)
				return nil
			}
		case <-deadline:
			return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
		}
	}
}
