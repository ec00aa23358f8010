package capture

import "os/exec"

// Terminal is the engine's view of one detached multiplexer session. The
// production implementation is tmux.Session; tests use a scripted fake.
type Terminal interface {
	// SessionName is the underlying multiplexer session name.
	SessionName() string

	// Exists reports whether the session is present on the server.
	Exists() bool

	// Start creates the detached session and launches command inside it.
	Start(command string) error

	SendText(text string) error
	SendEnter() error
	SendEscape() error
	SendTab() error
	SendShiftTab() error

	// Capture returns the currently rendered screen as plain text.
	Capture() (string, error)

	// CaptureScrollback returns the screen plus up to n lines of scrollback.
	CaptureScrollback(n int) (string, error)

	// Kill force-terminates the session; no-op when it does not exist.
	Kill() error
}

// TerminalFactory builds a Terminal for a session key.
type TerminalFactory func(key, workDir string, cols, rows int) Terminal

// DependencyChecker answers whether an external binary is available.
// Abstracted so unit tests run deterministically without tmux or the
// target CLI installed.
type DependencyChecker interface {
	Has(name string) bool
}

// ExecChecker is the production DependencyChecker, backed by exec.LookPath.
type ExecChecker struct{}

func (ExecChecker) Has(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
