package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

const (
	// ProductionURL is the live bunq API.
	ProductionURL = "https://api.bunq.com"
	// SandboxURL is bunq's public sandbox.
	SandboxURL = "https://public-api.sandbox.bunq.com"

	envAPIKey  = "BUNQ_API_KEY"
	envSandbox = "BUNQDAY_SANDBOX"
)

// Config holds all bunqday configuration.
type Config struct {
	Bunq       BunqConfig       `toml:"bunq"`
	Budget     BudgetConfig     `toml:"budget"`
	Fetch      FetchConfig      `toml:"fetch"`
	Daemon     DaemonConfig     `toml:"daemon"`
	TUI        TUIConfig        `toml:"tui"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// BunqConfig holds API connection settings.
type BunqConfig struct {
	BaseURL           string   `toml:"base_url,omitempty"`
	Sandbox           bool     `toml:"sandbox"`
	APIKey            string   `toml:"api_key,omitempty"`
	DeviceDescription string   `toml:"device_description"`
	PermittedIPs      []string `toml:"permitted_ips,omitempty"`
}

// BudgetConfig holds the daily allowance settings.
type BudgetConfig struct {
	DailyAllowance float64 `toml:"daily_allowance"`
	ResetDay       int     `toml:"reset_day"`
	Currency       string  `toml:"currency"`
}

// FetchConfig bounds how much history a refresh pulls and how long it is reused.
type FetchConfig struct {
	MaxPages          int `toml:"max_pages"`
	PageSize          int `toml:"page_size"`
	CacheMinutes      int `toml:"cache_minutes"`
	RequestTimeoutSec int `toml:"request_timeout_sec"`
}

// DaemonConfig holds background refresher settings.
type DaemonConfig struct {
	Addr     string `toml:"addr"`
	Interval string `toml:"interval"`
}

// TUIConfig holds dashboard settings.
type TUIConfig struct {
	AutoRefresh        bool `toml:"auto_refresh"`
	RefreshIntervalSec int  `toml:"refresh_interval_sec"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Bunq: BunqConfig{
			DeviceDescription: "bunqday",
		},
		Budget: BudgetConfig{
			DailyAllowance: 73.0,
			ResetDay:       25,
			Currency:       "EUR",
		},
		Fetch: FetchConfig{
			MaxPages:          20,
			PageSize:          50,
			CacheMinutes:      15,
			RequestTimeoutSec: 15,
		},
		Daemon: DaemonConfig{
			Addr:     "127.0.0.1:8765",
			Interval: "5m",
		},
		TUI: TUIConfig{
			AutoRefresh:        true,
			RefreshIntervalSec: 300,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

var pathOverride string

// SetPath points Load and Save at an explicit file instead of the XDG default.
// An empty path restores the default.
func SetPath(p string) {
	pathOverride = p
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if pathOverride != "" {
		return filepath.Dir(pathOverride)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bunqday")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bunqday")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	if pathOverride != "" {
		return pathOverride
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config to disk. The file may hold the API key, so it is
// created owner-only.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// Validate rejects values the budget and fetch code cannot work with.
func (c Config) Validate() error {
	if c.Budget.ResetDay < 1 || c.Budget.ResetDay > 28 {
		return fmt.Errorf("config: budget.reset_day must be between 1 and 28, got %d", c.Budget.ResetDay)
	}
	if c.Budget.DailyAllowance <= 0 {
		return fmt.Errorf("config: budget.daily_allowance must be positive, got %v", c.Budget.DailyAllowance)
	}
	if c.Fetch.MaxPages < 1 {
		return fmt.Errorf("config: fetch.max_pages must be at least 1, got %d", c.Fetch.MaxPages)
	}
	if c.Daemon.Interval != "" {
		if _, err := time.ParseDuration(c.Daemon.Interval); err != nil {
			return fmt.Errorf("config: daemon.interval: %w", err)
		}
	}
	return nil
}

// GetAPIKey returns the API key from env var or config, in that order.
func GetAPIKey(cfg Config) string {
	if key := os.Getenv(envAPIKey); key != "" {
		return key
	}
	return cfg.Bunq.APIKey
}

// Sandbox reports whether the sandbox environment is selected, by config or
// by the BUNQDAY_SANDBOX env var.
func Sandbox(cfg Config) bool {
	switch strings.ToLower(os.Getenv(envSandbox)) {
	case "1", "true", "yes":
		return true
	}
	return cfg.Bunq.Sandbox
}

// BaseURL resolves the API root: an explicit base_url wins, then the
// sandbox switch, then production.
func BaseURL(cfg Config) string {
	if cfg.Bunq.BaseURL != "" {
		return cfg.Bunq.BaseURL
	}
	if Sandbox(cfg) {
		return SandboxURL
	}
	return ProductionURL
}

// Allowance returns the daily allowance as a decimal amount.
func (c Config) Allowance() decimal.Decimal {
	return decimal.NewFromFloat(c.Budget.DailyAllowance)
}

// CacheTTL is how long a cached balance is served before refreshing.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Fetch.CacheMinutes) * time.Minute
}

// RequestTimeout is the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Fetch.RequestTimeoutSec) * time.Second
}

// DaemonInterval is the daemon's polling period, defaulting to five minutes.
func (c Config) DaemonInterval() time.Duration {
	d, err := time.ParseDuration(c.Daemon.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MaskKey hides all but the last four characters of an API key.
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
