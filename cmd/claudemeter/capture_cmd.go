package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/claudemeter/claudemeter/internal/capture"
	"github.com/claudemeter/claudemeter/internal/config"
	"github.com/claudemeter/claudemeter/internal/logging"
	"github.com/claudemeter/claudemeter/internal/store"
	"github.com/claudemeter/claudemeter/internal/tmux"
)

// handleCapture runs one capture and prints exactly one JSON object to
// stdout, success or failure. Every other byte of output goes to the log
// file or, with -verbose, to stderr.
func handleCapture(args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	workDir := fs.String("workdir", defaultWorkDir(), "workspace directory to capture usage for")
	command := fs.String("command", "", "Claude CLI executable (overrides config)")
	model := fs.String("model", "", "pass --model to the Claude CLI")
	bootTimeout := fs.Duration("boot-timeout", 0, "max wait for a fresh session to boot")
	pollInterval := fs.Duration("poll-interval", 0, "boot detector poll tick")
	settle := fs.Duration("settle", 0, "pause after opening the usage dialog")
	lifetime := fs.Duration("lifetime", 0, "session reuse window")
	attempts := fs.Int("attempts", 0, "usage scrape attempts")
	retryDelay := fs.Duration("retry-delay", 0, "delay between scrape attempts")
	verbose := fs.Bool("verbose", false, "mirror debug logs to stderr")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	initLogging(cfg, *verbose)
	defer logging.Shutdown()

	opts := engineOptions(cfg, *workDir)
	if *command != "" {
		opts.Command = *command
	}
	if *model != "" {
		opts.Model = *model
	}
	if *bootTimeout > 0 {
		opts.BootTimeout = *bootTimeout
	}
	if *pollInterval > 0 {
		opts.BootPollInterval = *pollInterval
	}
	if *settle > 0 {
		opts.Settle = *settle
	}
	if *lifetime > 0 {
		opts.Lifetime = *lifetime
	}
	if *attempts > 0 {
		opts.ScrapeAttempts = *attempts
	}
	if *retryDelay > 0 {
		opts.ScrapeRetryDelay = *retryDelay
	}

	records, err := store.OpenSQLite(filepath.Join(config.DataDir(), "sessions.db"))
	if err != nil {
		emit(nil, &capture.CaptureError{
			Code: capture.ErrInternal, Hint: "failed to open session store", Err: err})
	}
	defer records.Close()

	engine := capture.NewEngine(opts, buildSignatures(cfg), records, capture.ExecChecker{}, tmuxFactory)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := engine.Run(ctx)
	emit(report, runErr)
}

// emit prints the single-line JSON envelope and exits with the mapped code.
// It never returns.
func emit(report *capture.Report, runErr error) {
	out, code := capture.EncodeResult(report, runErr)
	fmt.Println(string(out))
	logging.Shutdown()
	os.Exit(code)
}

// engineOptions translates config units (ints in the TOML) into durations.
func engineOptions(cfg *config.Config, workDir string) capture.Options {
	c := cfg.Capture
	return capture.Options{
		WorkDir:          workDir,
		Command:          c.Command,
		Model:            c.Model,
		BootTimeout:      time.Duration(c.BootTimeoutSecs) * time.Second,
		BootPollInterval: time.Duration(c.BootPollIntervalMS) * time.Millisecond,
		Settle:           time.Duration(c.SettleMS) * time.Millisecond,
		KeySettle:        time.Duration(c.KeySettleMS) * time.Millisecond,
		ScrapeAttempts:   c.ScrapeAttempts,
		ScrapeRetryDelay: time.Duration(c.ScrapeRetryDelayMS) * time.Millisecond,
		Lifetime:         time.Duration(c.SessionLifetimeHours) * time.Hour,
		Cols:             c.Cols,
		Rows:             c.Rows,
		LockDir:          filepath.Join(config.DataDir(), "locks"),
	}
}

// buildSignatures merges the built-in screen signatures with config
// overrides and extras.
func buildSignatures(cfg *config.Config) *capture.Signatures {
	p := cfg.Patterns
	overrides := &capture.RawSignatures{
		Trust:   p.Trust,
		Boot:    p.Boot,
		Auth:    p.Auth,
		Loading: p.Loading,
		Alive:   p.Alive,
	}
	extras := &capture.RawSignatures{
		Trust:   p.ExtraTrust,
		Boot:    p.ExtraBoot,
		Auth:    p.ExtraAuth,
		Loading: p.ExtraLoading,
		Alive:   p.ExtraAlive,
	}
	raw := capture.MergeRawSignatures(capture.DefaultRawSignatures(), overrides, extras)
	return capture.CompileSignatures(raw)
}

// tmuxFactory adapts tmux.NewSession to the engine's terminal factory.
func tmuxFactory(key, workDir string, cols, rows int) capture.Terminal {
	return tmux.NewSession(key, workDir, cols, rows)
}
