package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/claudemeter/claudemeter/internal/config"
	"github.com/claudemeter/claudemeter/internal/logging"
)

const Version = "0.4.1"

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("claudemeter v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "attach":
			handleAttach(args[1:])
			return
		case "destroy":
			handleDestroy(args[1:])
			return
		case "doctor":
			handleDoctor(args[1:])
			return
		case "capture":
			handleCapture(args[1:])
			return
		}
	}

	// No subcommand: capture is the default so cron lines and shell pipelines
	// stay short.
	handleCapture(args)
}

func printHelp() {
	fmt.Print(`claudemeter - Claude Code usage telemetry capture

Reads rate-limit usage from Claude Code's /usage dialog by driving the CLI in
a detached tmux session, and prints a single JSON object to stdout.

Usage:
  claudemeter [capture] [flags]   Capture usage for a workspace (default)
  claudemeter attach  [flags]     Attach to the capture session (Ctrl+Q detaches)
  claudemeter destroy [flags]     Kill the capture session and forget it
  claudemeter doctor  [flags]     Check dependencies and session state
  claudemeter version             Print version
  claudemeter help                Show this help

Capture flags:
  -workdir path        Workspace directory (default: $CLAUDEMETER_WORKDIR or cwd)
  -config path         Config file (default: ~/.claudemeter/config.toml)
  -command name        Claude CLI executable (default: claude)
  -model name          Pass --model to the Claude CLI
  -boot-timeout dur    Max wait for a fresh session to boot (default: 10s)
  -poll-interval dur   Boot detector poll tick (default: 400ms)
  -settle dur          Pause after opening the usage dialog (default: 1.2s)
  -lifetime dur        Session reuse window (default: 5h)
  -attempts n          Usage scrape attempts (default: 3)
  -retry-delay dur     Delay between scrape attempts (default: 2s)
  -verbose             Mirror debug logs to stderr

Exit codes:
  0 success            4 auth_required
  1 internal_error     5 boot_failure
  2 tmux_not_found     6 parse_failure
  3 claude_cli_not_found  7 session_busy
`)
}

// defaultConfigPath is ~/.claudemeter/config.toml.
func defaultConfigPath() string {
	return filepath.Join(config.DataDir(), config.ConfigFileName)
}

// defaultWorkDir resolves the workspace: explicit flag wins, then the
// CLAUDEMETER_WORKDIR environment variable, then the current directory.
func defaultWorkDir() string {
	if dir := os.Getenv("CLAUDEMETER_WORKDIR"); dir != "" {
		return dir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// initLogging wires the log file under the data dir. Stdout is reserved for
// the JSON result; -verbose mirrors records to stderr.
func initLogging(cfg *config.Config, verbose bool) {
	logging.Init(logging.Config{
		LogDir:       config.DataDir(),
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     true,
		MirrorStderr: verbose,
	})
}

// loadConfigOrExit loads the TOML config; a malformed file is reported on
// stderr and terminates with the internal error code rather than silently
// running with defaults the user did not ask for.
func loadConfigOrExit(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "claudemeter: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
