package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claudemeter/claudemeter/internal/capture"
	"github.com/claudemeter/claudemeter/internal/config"
	"github.com/claudemeter/claudemeter/internal/store"
	"github.com/claudemeter/claudemeter/internal/tmux"
)

// handleDoctor prints a human-readable environment report: dependency
// availability, config/data paths, and the state of the workspace's capture
// session. Output goes to stderr so a stray doctor run in a pipeline cannot
// be mistaken for a capture envelope.
func handleDoctor(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	workDir := fs.String("workdir", defaultWorkDir(), "workspace directory")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	w := os.Stderr
	healthy := true

	fmt.Fprintf(w, "claudemeter v%s\n\n", Version)

	if err := tmux.IsTmuxAvailable(); err == nil {
		fmt.Fprintln(w, "  ok    tmux found on PATH")
	} else {
		fmt.Fprintf(w, "  FAIL  %v\n", err)
		healthy = false
	}

	if (capture.ExecChecker{}).Has(cfg.Capture.Command) {
		fmt.Fprintf(w, "  ok    %s found on PATH\n", cfg.Capture.Command)
	} else {
		fmt.Fprintf(w, "  FAIL  %s not found on PATH\n", cfg.Capture.Command)
		healthy = false
	}

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Fprintf(w, "  ok    config %s\n", *configPath)
	} else {
		fmt.Fprintf(w, "  ok    config %s (absent, using defaults)\n", *configPath)
	}

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err == nil {
		fmt.Fprintf(w, "  ok    data dir %s\n", dataDir)
	} else {
		fmt.Fprintf(w, "  FAIL  data dir %s: %v\n", dataDir, err)
		healthy = false
	}

	key := store.KeyFor(*workDir)
	session := tmux.NewSession(key, *workDir, cfg.Capture.Cols, cfg.Capture.Rows)
	fmt.Fprintf(w, "\n  workspace %s\n", *workDir)
	fmt.Fprintf(w, "  key       %s\n", key)
	if session.Exists() {
		fmt.Fprintf(w, "  session   %s (running)\n", session.SessionName())
	} else {
		fmt.Fprintf(w, "  session   %s (not running)\n", session.SessionName())
	}

	if records, err := store.OpenSQLite(filepath.Join(dataDir, "sessions.db")); err == nil {
		if rec, err := records.Get(key); err == nil && rec != nil {
			fmt.Fprintf(w, "  record    last success %s (%s ago)\n",
				rec.LastSuccess.Format(time.RFC3339),
				time.Since(rec.LastSuccess).Round(time.Second))
		} else {
			fmt.Fprintln(w, "  record    none")
		}
		records.Close()
	} else {
		fmt.Fprintf(w, "  FAIL  session store: %v\n", err)
		healthy = false
	}

	if !healthy {
		os.Exit(1)
	}
}
