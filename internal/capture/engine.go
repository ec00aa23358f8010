package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/claudemeter/claudemeter/internal/logging"
	"github.com/claudemeter/claudemeter/internal/store"
)

var engineLog = logging.ForComponent(logging.CompEngine)
var scrapeLog = logging.ForComponent(logging.CompScrape)

// Options are the engine's tunables. Zero values are replaced with defaults
// in NewEngine.
type Options struct {
	// WorkDir is the workspace the session is keyed by and runs in.
	WorkDir string

	// Command is the target CLI executable (default "claude").
	Command string

	// Model is passed as --model when non-empty.
	Model string

	BootTimeout      time.Duration
	BootPollInterval time.Duration

	// Settle is the pause after opening the usage dialog; KeySettle is the
	// pause between navigation keystrokes.
	Settle    time.Duration
	KeySettle time.Duration

	ScrapeAttempts   int
	ScrapeRetryDelay time.Duration

	// Lifetime bounds session reuse; a session whose record is older is
	// recreated.
	Lifetime time.Duration

	Cols int
	Rows int

	// LockDir enables the per-key advisory lock when non-empty, so a second
	// concurrent invocation for the same workspace fails fast instead of
	// racing keystrokes in the same session.
	LockDir string
}

func (o *Options) applyDefaults() {
	if o.Command == "" {
		o.Command = "claude"
	}
	if o.BootTimeout <= 0 {
		o.BootTimeout = 10 * time.Second
	}
	if o.BootPollInterval <= 0 {
		o.BootPollInterval = 400 * time.Millisecond
	}
	if o.Settle <= 0 {
		o.Settle = 1200 * time.Millisecond
	}
	if o.KeySettle <= 0 {
		o.KeySettle = 300 * time.Millisecond
	}
	if o.ScrapeAttempts <= 0 {
		o.ScrapeAttempts = 3
	}
	if o.ScrapeRetryDelay <= 0 {
		o.ScrapeRetryDelay = 2 * time.Second
	}
	if o.Lifetime <= 0 {
		o.Lifetime = 5 * time.Hour
	}
	if o.Cols <= 0 {
		o.Cols = 200
	}
	if o.Rows <= 0 {
		o.Rows = 50
	}
}

// diagScrollback is how much scrollback failure diagnostics include.
const diagScrollback = 200

// Engine is the capture pipeline: session reuse-or-recreate, boot detection,
// navigation, scraping, and result assembly. One Run per invocation.
type Engine struct {
	opts        Options
	sigs        *Signatures
	records     store.RecordStore
	deps        DependencyChecker
	newTerminal TerminalFactory

	now   func() time.Time
	sleep func(time.Duration)
}

func NewEngine(opts Options, sigs *Signatures, records store.RecordStore, deps DependencyChecker, factory TerminalFactory) *Engine {
	opts.applyDefaults()
	if sigs == nil {
		sigs = CompileSignatures(nil)
	}
	return &Engine{
		opts:        opts,
		sigs:        sigs,
		records:     records,
		deps:        deps,
		newTerminal: factory,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Run executes one capture. On success the session record is touched and the
// tmux session preserved for reuse. On an unrecoverable setup failure (boot
// timeout, auth, missing deps) the session is destroyed so a poisoned session
// is never left for the next caller. A scrape-only failure after a successful
// boot preserves the session: reuse may still be valid next time.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if !e.deps.Has("tmux") {
		return nil, &CaptureError{Code: ErrTmuxNotFound,
			Hint: "tmux is required; install it with your package manager"}
	}
	if !e.deps.Has(e.opts.Command) {
		return nil, &CaptureError{Code: ErrClaudeNotFound,
			Hint: fmt.Sprintf("%s not found on PATH; install Claude Code first", e.opts.Command)}
	}

	key := store.KeyFor(e.opts.WorkDir)

	if e.opts.LockDir != "" {
		lock, err := store.AcquireLock(e.opts.LockDir, key, 2*e.worstCaseDuration())
		if errors.Is(err, store.ErrLocked) {
			return nil, &CaptureError{Code: ErrSessionBusy,
				Hint: "another capture for this workspace is already running"}
		}
		if err != nil {
			return nil, &CaptureError{Code: ErrInternal, Hint: "failed to acquire session lock", Err: err}
		}
		defer lock.Release()
	}

	term := e.newTerminal(key, e.opts.WorkDir, e.opts.Cols, e.opts.Rows)

	if e.sessionValid(key, term) {
		engineLog.Debug("session_reused", slog.String("key", key))
		// Close any dialog a previous invocation may have left open so the
		// slash command lands in the input box.
		_ = term.SendEscape()
		e.sleep(e.opts.KeySettle)
	} else {
		if err := e.recreateSession(ctx, key, term); err != nil {
			return nil, err
		}
	}

	report, err := e.captureUsage(ctx, term)
	if err != nil {
		return nil, err
	}

	// Touch: keep the reuse window anchored to the last full success.
	rec := &store.Record{
		Key:         key,
		WorkDir:     e.opts.WorkDir,
		TmuxSession: term.SessionName(),
		CreatedAt:   e.now(),
		LastSuccess: e.now(),
	}
	if err := e.records.Put(rec); err != nil {
		// The capture itself succeeded; a record write failure only costs
		// reuse on the next call.
		engineLog.Warn("record_touch_failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	return report, nil
}

// sessionValid decides reuse. It fails closed: missing tmux session, missing
// record, expired record, or a failed health probe each force recreation,
// and each reason is logged to keep the state machine auditable.
func (e *Engine) sessionValid(key string, term Terminal) bool {
	if !term.Exists() {
		engineLog.Debug("session_invalid", slog.String("key", key), slog.String("reason", "missing_tmux_session"))
		return false
	}

	rec, err := e.records.Get(key)
	if err != nil || rec == nil {
		engineLog.Debug("session_invalid", slog.String("key", key), slog.String("reason", "missing_record"))
		return false
	}
	if age := e.now().Sub(rec.LastSuccess); age > e.opts.Lifetime {
		engineLog.Debug("session_invalid",
			slog.String("key", key),
			slog.String("reason", "record_expired"),
			slog.Duration("age", age))
		return false
	}

	content, err := term.Capture()
	if err != nil || !e.sigs.Alive(content) {
		engineLog.Debug("session_invalid", slog.String("key", key), slog.String("reason", "health_check_failed"))
		return false
	}

	return true
}

// recreateSession tears down whatever exists under the key and boots a fresh
// session. Any failure here destroys the session before returning.
func (e *Engine) recreateSession(ctx context.Context, key string, term Terminal) error {
	_ = term.Kill()
	_ = e.records.Delete(key)

	if err := term.Start(e.launchCommand()); err != nil {
		_ = term.Kill()
		return &CaptureError{Code: ErrBootFailure, Hint: "failed to create terminal session", Err: err}
	}

	detector := &BootDetector{
		Term:     term,
		Sigs:     e.sigs,
		Interval: e.opts.BootPollInterval,
		Timeout:  e.opts.BootTimeout,
	}
	state, lastScreen := detector.Wait(ctx)

	switch state {
	case BootBooted:
		engineLog.Debug("session_created", slog.String("key", key))
		// The record is written at creation, not only on capture success:
		// a freshly booted session must stay reusable even when this
		// invocation goes on to fail at the scrape stage.
		rec := &store.Record{
			Key:         key,
			WorkDir:     e.opts.WorkDir,
			TmuxSession: term.SessionName(),
			CreatedAt:   e.now(),
			LastSuccess: e.now(),
		}
		if err := e.records.Put(rec); err != nil {
			engineLog.Warn("record_create_failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil
	case BootAuthError:
		engineLog.Debug("auth_error_screen", slog.String("screen", lastScreen))
		_ = term.Kill()
		return &CaptureError{Code: ErrAuthRequired,
			Hint: "Claude Code is not signed in; run it once in a terminal and log in"}
	default:
		engineLog.Debug("boot_timeout_screen", slog.String("screen", lastScreen))
		_ = term.Kill()
		return &CaptureError{Code: ErrBootFailure,
			Hint: fmt.Sprintf("Claude Code did not reach a ready state within %s", e.opts.BootTimeout)}
	}
}

func (e *Engine) launchCommand() string {
	if e.opts.Model != "" {
		return e.opts.Command + " --model " + e.opts.Model
	}
	return e.opts.Command
}

// captureUsage runs the fixed navigation script and the scrape retry loop.
// The usage dialog opens on its default tab; two backward tab-stops reach
// Status, two forward return to Usage. The step counts are configuration-like
// contract with Claude Code's tab layout, not something the engine infers.
func (e *Engine) captureUsage(ctx context.Context, term Terminal) (*Report, error) {
	if err := term.SendText("/usage"); err != nil {
		return nil, &CaptureError{Code: ErrInternal, Hint: "failed to send keystrokes", Err: err}
	}
	e.sleep(e.opts.KeySettle)
	if err := term.SendEnter(); err != nil {
		return nil, &CaptureError{Code: ErrInternal, Hint: "failed to send keystrokes", Err: err}
	}
	e.sleep(e.opts.Settle)

	for i := 0; i < 2; i++ {
		if err := term.SendShiftTab(); err != nil {
			return nil, &CaptureError{Code: ErrInternal, Hint: "failed to send keystrokes", Err: err}
		}
		e.sleep(e.opts.KeySettle)
	}

	status := Status{Version: "unknown", LoginMethod: "unknown", Organization: "N/A", MCPServers: []string{}}
	if content, err := term.Capture(); err == nil {
		status = ScrapeStatus(content)
	} else {
		scrapeLog.Debug("status_capture_failed", slog.String("error", err.Error()))
	}

	for i := 0; i < 2; i++ {
		if err := term.SendTab(); err != nil {
			return nil, &CaptureError{Code: ErrInternal, Hint: "failed to send keystrokes", Err: err}
		}
		e.sleep(e.opts.KeySettle)
	}

	fields, err := e.scrapeUsageWithRetry(ctx, term)
	if err != nil {
		return nil, err
	}

	// Close the dialog so the reused session is back at the input box.
	_ = term.SendEscape()

	return &Report{
		OK:            true,
		Status:        status,
		Session5h:     *fields.Session,
		WeekAllModels: *fields.WeekAll,
		WeekOpus:      fields.WeekOpus,
		CapturedAt:    e.now().UTC(),
	}, nil
}

// scrapeUsageWithRetry polls the usage tab until both mandatory buckets are
// extracted or the attempt budget is exhausted. Loading screens skip
// extraction and consume an attempt.
func (e *Engine) scrapeUsageWithRetry(ctx context.Context, term Terminal) (UsageFields, error) {
	limiter := rate.NewLimiter(rate.Every(e.opts.ScrapeRetryDelay), 1)

	var fields UsageFields
	var lastScreen string
	for attempt := 1; attempt <= e.opts.ScrapeAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		content, err := term.Capture()
		if err != nil {
			scrapeLog.Debug("usage_capture_failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			continue
		}
		lastScreen = content

		if e.sigs.Loading(content) {
			scrapeLog.Debug("usage_still_loading", slog.Int("attempt", attempt))
			continue
		}

		fields = ScrapeUsage(content)
		if fields.Complete() {
			scrapeLog.Debug("usage_scraped", slog.Int("attempt", attempt))
			return fields, nil
		}
		scrapeLog.Debug("usage_scrape_incomplete", slog.Int("attempt", attempt))
	}

	// Diagnostic only: screen text goes to the debug channel, never into the
	// machine-readable envelope.
	if diag, err := term.CaptureScrollback(diagScrollback); err == nil {
		lastScreen = diag
	}
	scrapeLog.Debug("parse_failure_screen", slog.String("screen", lastScreen))

	return fields, &CaptureError{Code: ErrParseFailure,
		Hint: "usage screen never matched the expected format; Claude Code's rendering may have changed"}
}

// worstCaseDuration bounds one invocation end to end; the advisory lock's
// staleness threshold derives from it.
func (e *Engine) worstCaseDuration() time.Duration {
	scrape := time.Duration(e.opts.ScrapeAttempts) * e.opts.ScrapeRetryDelay
	navigation := e.opts.Settle + 8*e.opts.KeySettle
	return e.opts.BootTimeout + navigation + scrape + 5*time.Second
}
