package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/claudemeter/claudemeter/internal/config"
	"github.com/claudemeter/claudemeter/internal/logging"
	"github.com/claudemeter/claudemeter/internal/store"
	"github.com/claudemeter/claudemeter/internal/tmux"
)

// handleDestroy kills the workspace's capture session and deletes its record.
// The escape hatch for a session stuck in a state the engine cannot recover.
func handleDestroy(args []string) {
	fs := flag.NewFlagSet("destroy", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	workDir := fs.String("workdir", defaultWorkDir(), "workspace directory")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	initLogging(cfg, false)
	defer logging.Shutdown()

	key := store.KeyFor(*workDir)
	session := tmux.NewSession(key, *workDir, cfg.Capture.Cols, cfg.Capture.Rows)

	existed := session.Exists()
	if err := session.Kill(); err != nil {
		fmt.Fprintf(os.Stderr, "claudemeter: destroy: %v\n", err)
		os.Exit(1)
	}

	if records, err := store.OpenSQLite(filepath.Join(config.DataDir(), "sessions.db")); err == nil {
		_ = records.Delete(key)
		records.Close()
	}

	if existed {
		fmt.Fprintf(os.Stderr, "Destroyed session %s\n", session.SessionName())
	} else {
		fmt.Fprintf(os.Stderr, "No session for %s; record cleared\n", *workDir)
	}
}
