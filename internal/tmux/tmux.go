package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/claudemeter/claudemeter/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// ErrCaptureTimeout is returned when capture-pane exceeds its timeout.
// Callers should retry on the next poll tick rather than failing the run.
var ErrCaptureTimeout = errors.New("capture-pane timed out")

// SessionPrefix namespaces all capture sessions so Destroy can never touch
// a user's own tmux sessions.
const SessionPrefix = "claudemeter_"

// captureCacheTTL bounds how long a captured screen is considered current.
// Poll loops run at 400ms+, so a 300ms cache never hides a fresh redraw
// from the next tick while still deduplicating bursts of captures.
const captureCacheTTL = 300 * time.Millisecond

// IsTmuxAvailable checks if tmux is installed and accessible.
func IsTmuxAvailable() error {
	cmd := exec.Command("tmux", "-V")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tmux not found or not working: %w (output: %s)", err, string(output))
	}
	return nil
}

// Session is a detached tmux session wrapping the target interactive CLI.
// The fixed geometry makes text-position-based scraping reproducible across
// invocations regardless of the invoking terminal's size.
type Session struct {
	Name    string
	WorkDir string
	Cols    int
	Rows    int

	// CapturePane cache: avoids spawning a subprocess for every capture
	// during rapid health checks. Invalidated by every key send.
	cacheMu      sync.RWMutex
	cacheContent string
	cacheTime    time.Time
	captureSf    singleflight.Group
}

// NewSession creates a Session handle for the given session key.
// The same key always addresses the same underlying tmux session.
func NewSession(key, workDir string, cols, rows int) *Session {
	if cols <= 0 {
		cols = 200
	}
	if rows <= 0 {
		rows = 50
	}
	return &Session{
		Name:    SessionPrefix + key,
		WorkDir: workDir,
		Cols:    cols,
		Rows:    rows,
	}
}

// SessionName returns the tmux session name.
func (s *Session) SessionName() string {
	return s.Name
}

// Start creates the detached session with fixed geometry and launches the
// target command inside it. The command is sent as keystrokes rather than
// passed to new-session so the pane survives the CLI exiting (the shell
// stays up and the captured error output remains inspectable).
func (s *Session) Start(command string) error {
	s.invalidateCache()

	workDir := s.WorkDir
	if workDir == "" {
		workDir = os.Getenv("HOME")
	}

	cmd := exec.Command("tmux", "new-session", "-d",
		"-s", s.Name,
		"-c", workDir,
		"-x", strconv.Itoa(s.Cols),
		"-y", strconv.Itoa(s.Rows))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to create tmux session: %w (output: %s)", err, string(output))
	}

	// Batch session options into a single subprocess call:
	// - status off: the status line would otherwise eat a pane row and
	//   shift line positions the scraper depends on
	// - history-limit: enough scrollback for the usage dialog plus boot noise
	// - escape-time 10: Esc (dialog close) must not be absorbed as a
	//   pending escape sequence for half a second
	_ = exec.Command("tmux",
		"set-option", "-t", s.Name, "status", "off", ";",
		"set-option", "-t", s.Name, "history-limit", "5000", ";",
		"set-option", "-t", s.Name, "escape-time", "10").Run()

	if command != "" {
		if err := s.SendTextAndEnter(command); err != nil {
			return fmt.Errorf("failed to send launch command: %w", err)
		}
	}

	tmuxLog.Debug("session_started",
		slog.String("session", s.Name),
		slog.String("workdir", workDir),
		slog.Int("cols", s.Cols),
		slog.Int("rows", s.Rows))
	return nil
}

// Exists checks whether the tmux session is present on the server.
func (s *Session) Exists() bool {
	return exec.Command("tmux", "has-session", "-t", s.Name).Run() == nil
}

// SendText sends literal text to the session.
// The -l flag makes tmux treat the string as literal characters, so "/usage"
// or a model name can never be misread as tmux key names.
func (s *Session) SendText(text string) error {
	s.invalidateCache()
	return exec.Command("tmux", "send-keys", "-l", "-t", s.Name, "--", text).Run()
}

// SendEnter sends the Enter key.
func (s *Session) SendEnter() error {
	s.invalidateCache()
	return exec.Command("tmux", "send-keys", "-t", s.Name, "Enter").Run()
}

// SendTab sends the Tab key (forward tab-stop in the usage dialog).
func (s *Session) SendTab() error {
	s.invalidateCache()
	return exec.Command("tmux", "send-keys", "-t", s.Name, "Tab").Run()
}

// SendShiftTab sends Shift+Tab (backward tab-stop in the usage dialog).
func (s *Session) SendShiftTab() error {
	s.invalidateCache()
	return exec.Command("tmux", "send-keys", "-t", s.Name, "BTab").Run()
}

// SendEscape sends the Escape key (closes an open dialog).
func (s *Session) SendEscape() error {
	s.invalidateCache()
	return exec.Command("tmux", "send-keys", "-t", s.Name, "Escape").Run()
}

// SendTextAndEnter sends literal text followed by Enter as two separate tmux
// calls with a short delay between them. tmux 3.2+ wraps send-keys -l in
// bracketed paste sequences; without the delay, Enter arrives in the same PTY
// buffer as the paste-end marker and gets swallowed by async TUI frameworks.
func (s *Session) SendTextAndEnter(text string) error {
	if err := s.SendText(text); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return s.SendEnter()
}

// Capture returns the currently rendered screen as plain text.
// Results are cached briefly and concurrent calls are deduplicated via
// singleflight, so poll loops never stack up capture-pane subprocesses.
func (s *Session) Capture() (string, error) {
	s.cacheMu.RLock()
	if s.cacheContent != "" && time.Since(s.cacheTime) < captureCacheTTL {
		content := s.cacheContent
		s.cacheMu.RUnlock()
		return content, nil
	}
	s.cacheMu.RUnlock()

	v, err, _ := s.captureSf.Do("capture", func() (interface{}, error) {
		s.cacheMu.RLock()
		if s.cacheContent != "" && time.Since(s.cacheTime) < captureCacheTTL {
			content := s.cacheContent
			s.cacheMu.RUnlock()
			return content, nil
		}
		s.cacheMu.RUnlock()

		content, err := s.capturePane(0)
		if err != nil {
			return "", err
		}

		s.cacheMu.Lock()
		s.cacheContent = content
		s.cacheTime = time.Now()
		s.cacheMu.Unlock()
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// CaptureScrollback returns the screen plus up to n lines of scrollback.
// Never cached: scrollback captures are only used for failure diagnostics.
func (s *Session) CaptureScrollback(n int) (string, error) {
	return s.capturePane(n)
}

func (s *Session) capturePane(scrollback int) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// -J joins wrapped lines so label/value pairs stay on one line
	args := []string{"capture-pane", "-t", s.Name, "-p", "-J"}
	if scrollback > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(scrollback))
	}
	output, err := exec.CommandContext(ctx, "tmux", args...).Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrCaptureTimeout
		}
		return "", fmt.Errorf("failed to capture pane: %w", err)
	}
	return string(output), nil
}

// Kill force-terminates the session. Safe to call when the session does not
// exist (no-op). tmux kill-session sends SIGHUP which Claude Code 2.1.27+
// ignores, so the pane's process tree is captured first and any survivors
// are escalated through SIGTERM to SIGKILL.
func (s *Session) Kill() error {
	if !s.Exists() {
		return nil
	}
	s.invalidateCache()

	_, oldPIDs := s.paneProcessTree()

	err := exec.Command("tmux", "kill-session", "-t", s.Name).Run()

	if len(oldPIDs) > 0 {
		s.ensureProcessesDead(oldPIDs)
	}

	tmuxLog.Debug("session_killed", slog.String("session", s.Name), slog.Int("pids", len(oldPIDs)))
	return err
}

// paneProcessTree returns the pane's direct PID and all descendant PIDs.
func (s *Session) paneProcessTree() (panePID int, allPIDs []int) {
	target := s.Name + ":"
	out, err := exec.Command("tmux", "list-panes", "-t", target, "-F", "#{pane_pid}").Output()
	if err != nil {
		return 0, nil
	}
	pidStr := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(pidStr, '\n'); idx >= 0 {
		pidStr = pidStr[:idx]
	}
	panePID, err = strconv.Atoi(pidStr)
	if err != nil {
		return 0, nil
	}

	allPIDs = []int{panePID}
	queue := []int{panePID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		pgrepOut, err := exec.Command("pgrep", "-P", strconv.Itoa(parent)).Output()
		if err != nil {
			continue
		}
		for _, line := range strings.Split(strings.TrimSpace(string(pgrepOut)), "\n") {
			if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
				allPIDs = append(allPIDs, pid)
				queue = append(queue, pid)
			}
		}
	}
	return panePID, allPIDs
}

// isOurProcess guards against PID reuse: only processes we could plausibly
// have spawned inside the pane are eligible for escalation.
func isOurProcess(pid int) bool {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return false
	}
	name := strings.ToLower(strings.TrimSpace(string(out)))
	for _, known := range []string{"claude", "node", "zsh", "bash", "sh", "npm"} {
		if strings.Contains(name, known) {
			return true
		}
	}
	return false
}

// ensureProcessesDead escalates SIGTERM then SIGKILL for pane processes that
// survived kill-session's SIGHUP.
func (s *Session) ensureProcessesDead(oldPIDs []int) {
	time.Sleep(500 * time.Millisecond)

	var survivors []int
	for _, pid := range oldPIDs {
		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			continue // already dead
		}
		if !isOurProcess(pid) {
			continue
		}
		survivors = append(survivors, pid)
	}
	if len(survivors) == 0 {
		return
	}

	tmuxLog.Debug("kill_survivors_sigterm", slog.Any("pids", survivors))
	for _, pid := range survivors {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}

	time.Sleep(1 * time.Second)

	for _, pid := range survivors {
		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			continue
		}
		tmuxLog.Debug("kill_survivor_sigkill", slog.Int("pid", pid))
		_ = proc.Signal(syscall.SIGKILL)
	}
}

// invalidateCache clears the Capture cache.
// MUST be called after any action that might change terminal content.
func (s *Session) invalidateCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheContent = ""
	s.cacheTime = time.Time{}
}
