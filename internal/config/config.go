// Package config loads user preferences from ~/.claudemeter/config.toml.
// Everything has a working default; the file is optional. Command-line flags
// override config values, which override defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the TOML config file for user preferences.
const ConfigFileName = "config.toml"

// Config is the user-facing configuration.
type Config struct {
	Capture  CaptureSettings `toml:"capture"`
	Patterns PatternSettings `toml:"patterns"`
	Logging  LoggingSettings `toml:"logging"`
}

// CaptureSettings holds the engine's timing and target-CLI knobs.
type CaptureSettings struct {
	// Command is the Claude CLI executable or alias (default "claude").
	Command string `toml:"command"`

	// Model is passed as --model when non-empty.
	Model string `toml:"model"`

	// BootTimeoutSecs bounds how long a fresh session may take to boot.
	BootTimeoutSecs int `toml:"boot_timeout_secs"`

	// BootPollIntervalMS is the boot-detector poll tick.
	BootPollIntervalMS int `toml:"boot_poll_interval_ms"`

	// SettleMS is the pause after opening the usage dialog.
	SettleMS int `toml:"settle_ms"`

	// KeySettleMS is the pause between navigation keystrokes.
	KeySettleMS int `toml:"key_settle_ms"`

	// ScrapeAttempts is the usage-scrape retry budget.
	ScrapeAttempts int `toml:"scrape_attempts"`

	// ScrapeRetryDelayMS is the delay between scrape attempts.
	ScrapeRetryDelayMS int `toml:"scrape_retry_delay_ms"`

	// SessionLifetimeHours mirrors the upstream 5-hour usage window: a
	// session older than this is recreated rather than reused.
	SessionLifetimeHours int `toml:"session_lifetime_hours"`

	// Cols/Rows fix the virtual terminal geometry for reproducible scraping.
	Cols int `toml:"cols"`
	Rows int `toml:"rows"`
}

// PatternSettings lets users repair detection when Claude Code's rendered
// text drifts, without waiting for a release. A set field replaces the
// built-in list; extra_* fields append to it. Entries prefixed "re:" are
// compiled as regex, anything else matches via strings.Contains.
type PatternSettings struct {
	Trust   []string `toml:"trust"`
	Boot    []string `toml:"boot"`
	Auth    []string `toml:"auth"`
	Loading []string `toml:"loading"`
	Alive   []string `toml:"alive"`

	ExtraTrust   []string `toml:"extra_trust"`
	ExtraBoot    []string `toml:"extra_boot"`
	ExtraAuth    []string `toml:"extra_auth"`
	ExtraLoading []string `toml:"extra_loading"`
	ExtraAlive   []string `toml:"extra_alive"`
}

// LoggingSettings mirrors internal/logging.Config.
type LoggingSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		Capture: CaptureSettings{
			Command:              "claude",
			BootTimeoutSecs:      10,
			BootPollIntervalMS:   400,
			SettleMS:             1200,
			KeySettleMS:          300,
			ScrapeAttempts:       3,
			ScrapeRetryDelayMS:   2000,
			SessionLifetimeHours: 5,
			Cols:                 200,
			Rows:                 50,
		},
		Logging: LoggingSettings{
			Level:  "debug",
			Format: "json",
		},
	}
}

// DataDir returns the claudemeter data directory (~/.claudemeter).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return filepath.Join(home, ".claudemeter")
}

// Load reads the config at path, applying defaults for anything unset.
// A missing file is not an error; a malformed file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults restores defaults for fields the TOML explicitly zeroed.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Capture.Command == "" {
		cfg.Capture.Command = def.Capture.Command
	}
	if cfg.Capture.BootTimeoutSecs <= 0 {
		cfg.Capture.BootTimeoutSecs = def.Capture.BootTimeoutSecs
	}
	if cfg.Capture.BootPollIntervalMS <= 0 {
		cfg.Capture.BootPollIntervalMS = def.Capture.BootPollIntervalMS
	}
	if cfg.Capture.SettleMS <= 0 {
		cfg.Capture.SettleMS = def.Capture.SettleMS
	}
	if cfg.Capture.KeySettleMS <= 0 {
		cfg.Capture.KeySettleMS = def.Capture.KeySettleMS
	}
	if cfg.Capture.ScrapeAttempts <= 0 {
		cfg.Capture.ScrapeAttempts = def.Capture.ScrapeAttempts
	}
	if cfg.Capture.ScrapeRetryDelayMS <= 0 {
		cfg.Capture.ScrapeRetryDelayMS = def.Capture.ScrapeRetryDelayMS
	}
	if cfg.Capture.SessionLifetimeHours <= 0 {
		cfg.Capture.SessionLifetimeHours = def.Capture.SessionLifetimeHours
	}
	if cfg.Capture.Cols <= 0 {
		cfg.Capture.Cols = def.Capture.Cols
	}
	if cfg.Capture.Rows <= 0 {
		cfg.Capture.Rows = def.Capture.Rows
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}
