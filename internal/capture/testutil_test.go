package capture

import (
	"errors"
	"sync"
)

// fakeTerminal is a scripted Terminal. Screens is consumed one entry per
// Capture call; the last entry repeats once the script runs out.
type fakeTerminal struct {
	mu      sync.Mutex
	name    string
	exists  bool
	screens []string
	idx     int

	started      bool
	startCmd     string
	killed       bool
	keystrokes   []string
	captureErr   error
	startErr     error
	keystrokeErr error
}

func newFakeTerminal(screens ...string) *fakeTerminal {
	return &fakeTerminal{name: "claudemeter_test", screens: screens}
}

func (f *fakeTerminal) SessionName() string { return f.name }

func (f *fakeTerminal) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists
}

func (f *fakeTerminal) Start(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	f.startCmd = command
	f.exists = true
	return nil
}

func (f *fakeTerminal) key(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keystrokeErr != nil {
		return f.keystrokeErr
	}
	f.keystrokes = append(f.keystrokes, name)
	return nil
}

func (f *fakeTerminal) SendText(text string) error { return f.key("text:" + text) }
func (f *fakeTerminal) SendEnter() error           { return f.key("enter") }
func (f *fakeTerminal) SendEscape() error          { return f.key("escape") }
func (f *fakeTerminal) SendTab() error             { return f.key("tab") }
func (f *fakeTerminal) SendShiftTab() error        { return f.key("shift-tab") }

func (f *fakeTerminal) Capture() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return "", f.captureErr
	}
	if len(f.screens) == 0 {
		return "", errors.New("no screens scripted")
	}
	screen := f.screens[f.idx]
	if f.idx < len(f.screens)-1 {
		f.idx++
	}
	return screen, nil
}

func (f *fakeTerminal) CaptureScrollback(int) (string, error) {
	return f.Capture()
}

func (f *fakeTerminal) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
	f.exists = false
	return nil
}

func (f *fakeTerminal) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.keystrokes))
	copy(out, f.keystrokes)
	return out
}

// fakeDeps answers Has from a fixed set.
type fakeDeps map[string]bool

func (f fakeDeps) Has(name string) bool { return f[name] }
