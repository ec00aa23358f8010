package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/claudemeter/claudemeter/internal/logging"
	"github.com/claudemeter/claudemeter/internal/store"
	"github.com/claudemeter/claudemeter/internal/tmux"
)

// handleAttach attaches the invoking terminal to the workspace's capture
// session so a human can see exactly what the scraper sees. Ctrl+Q detaches;
// the session keeps running.
func handleAttach(args []string) {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	workDir := fs.String("workdir", defaultWorkDir(), "workspace directory")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	initLogging(cfg, false)
	defer logging.Shutdown()

	key := store.KeyFor(*workDir)
	session := tmux.NewSession(key, *workDir, cfg.Capture.Cols, cfg.Capture.Rows)

	if !session.Exists() {
		fmt.Fprintf(os.Stderr, "No capture session for %s (run claudemeter first)\n", *workDir)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Attaching to %s (Ctrl+Q to detach)\n", session.SessionName())
	if err := session.Attach(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "claudemeter: attach: %v\n", err)
		os.Exit(1)
	}
}
