package capture

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/claudemeter/claudemeter/internal/logging"
)

var bootLog = logging.ForComponent(logging.CompEngine)

// BootState is the boot detector's classification of a captured screen.
type BootState string

const (
	BootPolling     BootState = "polling"
	BootTrustPrompt BootState = "trust_prompt"
	BootBooted      BootState = "booted"
	BootAuthError   BootState = "auth_error"
	BootTimedOut    BootState = "timed_out"
)

// bootRules is the transition table, evaluated in order. Order encodes
// precedence: the trust prompt wins even when the boot banner is visible on
// the same screen (accepting trust is a prerequisite for a real boot), and a
// booted screen is never mistaken for an auth screen.
var bootRules = []struct {
	state BootState
	match func(s *Signatures, content string) bool
}{
	{BootTrustPrompt, func(s *Signatures, c string) bool { return s.Trust(c) }},
	{BootBooted, func(s *Signatures, c string) bool { return s.Boot(c) }},
	{BootAuthError, func(s *Signatures, c string) bool { return s.Auth(c) }},
}

// ClassifyBootScreen maps one captured screen to a boot state. Pure; the
// polling loop and its I/O live in BootDetector.Wait.
func ClassifyBootScreen(sigs *Signatures, content string) BootState {
	for _, rule := range bootRules {
		if rule.match(sigs, content) {
			return rule.state
		}
	}
	return BootPolling
}

// BootDetector polls a freshly created session until the target CLI reaches
// a ready state, auto-accepting the first-run trust prompt along the way.
type BootDetector struct {
	Term     Terminal
	Sigs     *Signatures
	Interval time.Duration
	Timeout  time.Duration
}

// Wait runs the poll loop. It returns the terminal state (BootBooted,
// BootAuthError, or BootTimedOut) together with the last captured screen for
// diagnostics. An auth screen short-circuits immediately; it never waits out
// the remaining timeout budget.
func (d *BootDetector) Wait(ctx context.Context) (BootState, string) {
	limiter := rate.NewLimiter(rate.Every(d.Interval), 1)
	deadline := time.Now().Add(d.Timeout)

	var last string
	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			bootLog.Debug("boot_poll_cancelled", slog.String("error", err.Error()))
			return BootTimedOut, last
		}

		content, err := d.Term.Capture()
		if err != nil {
			// Transient capture failure: keep polling until the deadline.
			bootLog.Debug("boot_capture_failed", slog.String("error", err.Error()))
			continue
		}
		last = content

		switch ClassifyBootScreen(d.Sigs, content) {
		case BootTrustPrompt:
			bootLog.Debug("trust_prompt_accepted")
			_ = d.Term.SendEnter()
		case BootBooted:
			bootLog.Debug("boot_detected")
			return BootBooted, content
		case BootAuthError:
			bootLog.Debug("auth_screen_detected")
			return BootAuthError, content
		}
	}

	return BootTimedOut, last
}
